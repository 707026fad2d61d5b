package pkg

import (
	"testing"

	"github.com/appetiteclub/apt"
)

func TestOpenBus(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		wantNil bool
		wantErr bool
	}{
		{name: "noneDriver", driver: BusDriverNone, wantNil: true},
		{name: "unknownDriver", driver: "kafka", wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, err := OpenBus(BusConfig{Driver: tt.driver}, apt.NewNoopLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenBus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantNil && bus != nil {
				t.Fatalf("OpenBus() = %v, want nil", bus)
			}
		})
	}
}
