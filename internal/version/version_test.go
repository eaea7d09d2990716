package version

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// stubGit answers git describe calls from a table and restores the real
// runner when the test ends.
func stubGit(t *testing.T, commit, tag string, commitErr, tagErr error) {
	t.Helper()
	orig := runGit
	runGit = func(args ...string) (string, error) {
		if len(args) > 1 && args[1] == "--tags" {
			return tag, tagErr
		}
		return commit, commitErr
	}
	Reset()
	t.Cleanup(func() {
		runGit = orig
		Reset()
	})
}

func TestResolveFromGit(t *testing.T) {
	errNoRepo := errors.New("not a git repository")

	tests := []struct {
		name       string
		commit     string
		tag        string
		commitErr  error
		tagErr     error
		wantVer    string
		wantCommit string
	}{
		{"Tagged", "abc1234", "v1.4.0", nil, nil, "1.4.0", "abc1234"},
		{"TagWithoutPrefix", "abc1234-dirty", "2.0.0", nil, nil, "2.0.0", "abc1234-dirty"},
		{"NoTags", "abc1234", "", nil, errNoRepo, "dev", "abc1234"},
		{"EmptyTag", "abc1234", "", nil, nil, "dev", "abc1234"},
		{"NoRepo", "", "", errNoRepo, errNoRepo, "dev", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubGit(t, tt.commit, tt.tag, tt.commitErr, tt.tagErr)

			if got := GetVersion(); got != tt.wantVer {
				t.Errorf("GetVersion() = %q, want %q", got, tt.wantVer)
			}
			if got := GetCommit(); got != tt.wantCommit {
				t.Errorf("GetCommit() = %q, want %q", got, tt.wantCommit)
			}
			if info := Info(); !strings.HasPrefix(info, "cliproxy-usage-tui "+tt.wantVer+" (commit: "+tt.wantCommit) {
				t.Errorf("Info() = %q", info)
			}
		})
	}
}

func TestLinkerValuesWin(t *testing.T) {
	stubGit(t, "from-git", "v9.9.9", nil, nil)
	Version, Commit, Date = "1.2.3", "deadbeef", "2025-03-12"

	if GetVersion() != "1.2.3" || GetCommit() != "deadbeef" || GetDate() != "2025-03-12" {
		t.Errorf("linker values overridden: %s %s %s", GetVersion(), GetCommit(), GetDate())
	}
}

func TestGetDate_DefaultsToToday(t *testing.T) {
	stubGit(t, "abc", "v1.0.0", nil, nil)

	if got, want := GetDate(), time.Now().Format(time.DateOnly); got != want {
		t.Errorf("GetDate() = %q, want %q", got, want)
	}
}
