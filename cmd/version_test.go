package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestWriteVersion(t *testing.T) {
	tests := []struct {
		name    string
		short   bool
		format  string
		want    string
		wantErr bool
	}{
		{"Short", true, outputJSON, "dev\n", false},
		{"JSON", false, outputJSON, buildCommit, false},
		{"YAML", false, outputYAML, buildDate, false},
		{"Text is rejected", false, outputText, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&buf)

			err := writeVersion(cmd, tt.short, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("writeVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.short && buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
			if !tt.short && !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}
