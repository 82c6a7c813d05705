package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{name: "debug", level: "debug"},
		{name: "info", level: "info"},
		{name: "warn", level: "warn"},
		{name: "error", level: "error"},
		{name: "bogus level", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			l.Printf("hello %s", tt.level)
			l.Close()
		})
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	l := NewNop()
	l.Printf("dropped %d", 1)
	l.Debugf("dropped")
	l.Warnf("dropped")
	l.Errorf("dropped")
	l.Close()
}
