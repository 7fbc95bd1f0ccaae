package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "short flag with separate value",
			args:    []string{"-c", "conf.yaml", "-x", "localhost"},
			allowed: []string{"c", "config"},
			want:    []string{"-c", "conf.yaml"},
		},
		{
			name:    "double dash with equals",
			args:    []string{"--config=alt.json", "-x", "localhost"},
			allowed: []string{"c", "config"},
			want:    []string{"--config=alt.json"},
		},
		{
			name:    "allowed names may be given with dashes",
			args:    []string{"-a", "host:1", "--inbox", "/tmp/in"},
			allowed: []string{"-a", "--inbox"},
			want:    []string{"-a", "host:1", "--inbox", "/tmp/in"},
		},
		{
			name:    "unknown flags and positionals ignored",
			args:    []string{"-x", "1", "--y=2", "positional"},
			allowed: []string{"c"},
			want:    []string{},
		},
		{
			name:    "flag without value at end is kept",
			args:    []string{"-c"},
			allowed: []string{"c"},
			want:    []string{"-c"},
		},
		{
			name:    "next dash-starting token is not a value",
			args:    []string{"-c", "--config=alt.json"},
			allowed: []string{"c", "config"},
			want:    []string{"-c", "--config=alt.json"},
		},
		{
			name:    "value that looks like a flag in equals form",
			args:    []string{"--config=--weird.json"},
			allowed: []string{"config"},
			want:    []string{"--config=--weird.json"},
		},
		{
			name:    "repeated flag preserved in order",
			args:    []string{"-c", "one.json", "-c", "two.json"},
			allowed: []string{"c"},
			want:    []string{"-c", "one.json", "-c", "two.json"},
		},
		{
			name:    "empty args",
			args:    nil,
			allowed: []string{"c"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/path/short.yaml", ConfigPath([]string{"-c", "/path/short.yaml"}))
	assert.Equal(t, "/path/long.json", ConfigPath([]string{"-a", "x:1", "--config", "/path/long.json"}))
	assert.Equal(t, "/path/2.json", ConfigPath([]string{"-c", "/path/1.json", "-config=/path/2.json"}))
	assert.Empty(t, ConfigPath([]string{"-x", "1"}))
	assert.Empty(t, ConfigPath(nil))
}
