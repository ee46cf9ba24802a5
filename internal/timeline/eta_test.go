package timeline

import (
	"encoding/json"
	"testing"
)

func TestPredict(t *testing.T) {
	tests := []struct {
		name     string
		stage    StageKey
		firstTS  float64
		nowTS    float64
		progress float64
		want     ETA
	}{
		{
			name:  "no events means unknown",
			stage: StageResearch,
			want:  ETA{},
		},
		{
			name:     "complete stage",
			stage:    StagePlanning,
			firstTS:  1700000000,
			nowTS:    1700000003,
			progress: 100,
			want:     ETA{Known: true, Done: true},
		},
		{
			// research budget 25s, 40% done leaves 15s of work, 11s elapsed
			name:     "remaining seconds",
			stage:    StageResearch,
			firstTS:  1700000000,
			nowTS:    1700000011,
			progress: 40,
			want:     ETA{Known: true, Seconds: 4},
		},
		{
			name:     "millisecond timestamps normalized",
			stage:    StageWriting,
			firstTS:  1700000000000,
			nowTS:    1700000010000,
			progress: 0,
			want:     ETA{Known: true, Seconds: 20},
		},
		{
			name:     "mixed resolutions",
			stage:    StageWriting,
			firstTS:  1700000000,
			nowTS:    1700000010000,
			progress: 0,
			want:     ETA{Known: true, Seconds: 20},
		},
		{
			name:     "overdue clamps to zero",
			stage:    StageFiles,
			firstTS:  1700000000,
			nowTS:    1700000300,
			progress: 50,
			want:     ETA{Known: true, Seconds: 0},
		},
		{
			name:     "catch-all stage has no budget",
			stage:    StageOther,
			firstTS:  1700000000,
			nowTS:    1700000001,
			progress: 10,
			want:     ETA{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Predict(tt.stage, tt.firstTS, tt.nowTS, tt.progress); got != tt.want {
				t.Errorf("Predict() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestETAMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		eta  ETA
		want string
	}{
		{"unknown", ETA{}, "null"},
		{"done", ETA{Known: true, Done: true}, `"done"`},
		{"seconds", ETA{Known: true, Seconds: 12}, "12"},
		{"zero seconds", ETA{Known: true}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.eta)
			if err != nil {
				t.Fatal(err)
			}
			if string(out) != tt.want {
				t.Errorf("marshal = %s, want %s", out, tt.want)
			}
		})
	}
}
