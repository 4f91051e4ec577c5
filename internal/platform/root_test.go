package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig(t *testing.T) {
	// /tmp/
	//   project/ (registrar.yaml)
	//     subdir/
	//       nested/
	//   empty/

	baseDir := t.TempDir()
	projectDir := filepath.Join(baseDir, "project")
	subDir := filepath.Join(projectDir, "subdir")
	nestedDir := filepath.Join(subDir, "nested")
	emptyDir := filepath.Join(baseDir, "empty")

	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(emptyDir, 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(projectDir, ConfigFileName)
	if err := os.WriteFile(want, []byte("account: alice\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		startPath string
		wantPath  string
		wantErr   bool
	}{
		{name: "Start at Root", startPath: projectDir, wantPath: want},
		{name: "Start in Subdir", startPath: subDir, wantPath: want},
		{name: "Start Nested Deeply", startPath: nestedDir, wantPath: want},
		{name: "Not Found", startPath: emptyDir, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindConfig(tt.startPath)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.wantPath {
				t.Errorf("FindConfig() = %v, want %v", got, tt.wantPath)
			}
		})
	}
}

func TestResolveStatePath(t *testing.T) {
	inTemp := filepath.Join(os.TempDir(), "somewhere", "chain.yaml")

	tests := []struct {
		name      string
		path      string
		forceTemp bool
		want      string
	}{
		{name: "Empty", path: "", forceTemp: true, want: ""},
		{name: "Not Forced", path: "/var/lib/chain.yaml", want: "/var/lib/chain.yaml"},
		{name: "Already In Temp", path: inTemp, forceTemp: true, want: inTemp},
		{name: "Re-rooted", path: "/var/lib/chain.yaml", forceTemp: true, want: filepath.Join(os.TempDir(), "registrar-dev", "chain.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveStatePath(tt.path, tt.forceTemp); got != tt.want {
				t.Errorf("ResolveStatePath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDevRun(t *testing.T) {
	if !IsDevRun() {
		t.Error("test binaries should count as dev runs")
	}
}
