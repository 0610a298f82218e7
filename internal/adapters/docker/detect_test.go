package docker

import (
	"context"
	"errors"
	"testing"

	"github.com/melih/simfleet/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func detectorWith(mode string, pingOK map[string]bool, cliOK bool) (*Detector, *[]string) {
	cfg := testEngineConfig()
	cfg.Mode = mode
	var tried []string

	d := &Detector{
		cfg: cfg,
		newSDK: func(host string) (*Adapter, error) {
			tried = append(tried, "sdk:"+host)
			fc := newFakeClient()
			if !pingOK[host] {
				fc.pingErr = errors.New("connection refused")
			}
			return newAdapter(fc, cfg), nil
		},
		run: func(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
			tried = append(tried, "cli")
			if !cliOK {
				return nil, []byte("Cannot connect to the Docker daemon"), errors.New("exit status 1")
			}
			return nil, nil, nil
		},
	}
	return d, &tried
}

func TestDetect(t *testing.T) {
	socket := "unix:///var/run/docker.sock"
	tests := []struct {
		name   string
		mode   string
		pingOK map[string]bool
		cliOK  bool
		want   domain.EngineMode
		tried  []string
	}{
		{"env client works", "auto", map[string]bool{"": true}, true, domain.ModeSDK, []string{"sdk:"}},
		{"explicit socket works", "auto", map[string]bool{socket: true}, true, domain.ModeSDK, []string{"sdk:", "sdk:" + socket}},
		{"falls back to cli", "auto", nil, true, domain.ModeCLI, []string{"sdk:", "sdk:" + socket, "cli"}},
		{"nothing works", "auto", nil, false, domain.ModeUnavailable, []string{"sdk:", "sdk:" + socket, "cli"}},
		{"forced cli", "cli", map[string]bool{"": true}, true, domain.ModeCLI, []string{"cli"}},
		{"forced sdk without daemon", "sdk", nil, true, domain.ModeUnavailable, []string{"sdk:", "sdk:" + socket}},
		{"forced unavailable", "unavailable", map[string]bool{"": true}, true, domain.ModeUnavailable, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, tried := detectorWith(tt.mode, tt.pingOK, tt.cliOK)
			engine := d.Detect(context.Background())
			assert.Equal(t, tt.want, engine.Mode())
			assert.Equal(t, tt.tried, *tried)
		})
	}
}

func TestUnavailableEngine(t *testing.T) {
	var u Unavailable
	ctx := context.Background()
	assert.False(t, u.Available())
	assert.ErrorIs(t, u.Ping(ctx), domain.ErrEngineUnavailable)
	assert.ErrorIs(t, u.Start(ctx, "x"), domain.ErrEngineUnavailable)
	_, err := u.Logs(ctx, "x", 1)
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
}
