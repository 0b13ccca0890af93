package producer

import (
	"reflect"
	"testing"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		cfg  LaunchConfig
		want []string
	}{
		{
			name: "port only",
			cfg:  LaunchConfig{BinaryPath: "rtmp-producer", ListenPort: 1935},
			want: []string{"--port", "1935"},
		},
		{
			name: "with stream key",
			cfg:  LaunchConfig{BinaryPath: "rtmp-producer", ListenPort: 1935, StreamKey: "s3cret"},
			want: []string{"--port", "1935", "--key", "s3cret"},
		},
		{
			name: "verbose",
			cfg:  LaunchConfig{BinaryPath: "rtmp-producer", ListenPort: 8554, Verbose: true},
			want: []string{"--port", "8554", "--verbose"},
		},
		{
			name: "all flags",
			cfg:  LaunchConfig{BinaryPath: "rtmp-producer", ListenPort: 1935, StreamKey: "k", Verbose: true},
			want: []string{"--port", "1935", "--key", "k", "--verbose"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.BuildArgs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LaunchConfig
		wantErr bool
	}{
		{"valid", LaunchConfig{BinaryPath: "rtmp-producer", ListenPort: 1935}, false},
		{"missing binary", LaunchConfig{ListenPort: 1935}, true},
		{"zero port", LaunchConfig{BinaryPath: "rtmp-producer"}, true},
		{"negative port", LaunchConfig{BinaryPath: "rtmp-producer", ListenPort: -1}, true},
		{"port too large", LaunchConfig{BinaryPath: "rtmp-producer", ListenPort: 70000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
