package update

import (
	"errors"
	"os"
	"reflect"
	"testing"

	appErrors "skylight/internal/errors"
)

func TestInstallCommand(t *testing.T) {
	tests := []struct {
		name     string
		platform PlatformKind
		path     string
		want     Command
	}{
		{
			name:     "windows runs through cmd with raw quoting",
			platform: PlatformWindows,
			path:     `C:\Users\me\Downloads\Skylight Setup 2.0.0.exe`,
			want: Command{
				Path:    "cmd",
				Args:    []string{"/s", "/c", `""C:\Users\me\Downloads\Skylight Setup 2.0.0.exe""`},
				CmdLine: `cmd /s /c ""C:\Users\me\Downloads\Skylight Setup 2.0.0.exe""`,
			},
		},
		{
			name:     "mac opens the image",
			platform: PlatformMac,
			path:     "/Users/me/Downloads/Skylight-2.0.0.dmg",
			want:     Command{Path: "open", Args: []string{"/Users/me/Downloads/Skylight-2.0.0.dmg"}},
		},
		{
			name:     "linux executes the artifact",
			platform: PlatformLinux,
			path:     "/home/me/Downloads/Skylight-2.0.0.AppImage",
			want:     Command{Path: "/home/me/Downloads/Skylight-2.0.0.AppImage"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InstallCommand(tt.path, tt.platform)
			if err != nil {
				t.Fatalf("InstallCommand: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("InstallCommand =\n%#v\nwant\n%#v", got, tt.want)
			}
		})
	}
}

func TestDispatchLinuxMakesExecutableThenSpawnsThenExits(t *testing.T) {
	var order []string
	spawner := SpawnerFunc(func(c Command) (int, error) {
		order = append(order, "spawn "+c.Path)
		return 99, nil
	})
	d := NewDispatcher(
		WithSpawner(spawner),
		WithChmod(func(path string, mode os.FileMode) error {
			if mode != 0o755 {
				t.Errorf("chmod mode = %v, want 0755", mode)
			}
			order = append(order, "chmod "+path)
			return nil
		}),
		WithExitFunc(func() { order = append(order, "exit") }),
	)

	got, err := d.Dispatch("/tmp/Skylight.AppImage", PlatformLinux)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.PID != 99 || got.Command.Path != "/tmp/Skylight.AppImage" {
		t.Fatalf("unexpected result %+v", got)
	}
	want := []string{"chmod /tmp/Skylight.AppImage", "spawn /tmp/Skylight.AppImage", "exit"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestDispatchMacSkipsChmod(t *testing.T) {
	spawner := &recordingSpawner{}
	d := NewDispatcher(
		WithSpawner(spawner),
		WithChmod(func(string, os.FileMode) error {
			t.Fatal("chmod must not run for mac artifacts")
			return nil
		}),
		WithExitFunc(func() {}),
	)
	if _, err := d.Dispatch("/tmp/Skylight.dmg", PlatformMac); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if cmds := spawner.spawned(); len(cmds) != 1 || cmds[0].Path != "open" {
		t.Fatalf("spawned %+v", cmds)
	}
}

func TestDispatchFailuresDoNotExit(t *testing.T) {
	tests := []struct {
		name     string
		platform PlatformKind
		chmodErr error
		spawnErr error
		wantCode appErrors.Code
		spawns   int
	}{
		{"unsupported platform", PlatformUnknown, nil, nil, appErrors.CodeUnsupportedPlatform, 0},
		{"chmod fails", PlatformLinux, errors.New("read-only fs"), nil, appErrors.CodeInstallDispatch, 0},
		{"spawn fails", PlatformWindows, nil, errors.New("access denied"), appErrors.CodeInstallDispatch, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exited := false
			spawner := &recordingSpawner{err: tt.spawnErr}
			d := NewDispatcher(
				WithSpawner(spawner),
				WithChmod(func(string, os.FileMode) error { return tt.chmodErr }),
				WithExitFunc(func() { exited = true }),
			)
			_, err := d.Dispatch("/tmp/artifact", tt.platform)
			if !appErrors.IsCode(err, tt.wantCode) {
				t.Fatalf("error = %v, want %s", err, tt.wantCode)
			}
			if exited {
				t.Fatal("exit hook must not run after a failed dispatch")
			}
			if got := len(spawner.spawned()); got != tt.spawns {
				t.Fatalf("spawned %d commands, want %d", got, tt.spawns)
			}
		})
	}
}
