package forker

import "testing"

func TestBuilderBuildsStartDescriptor(t *testing.T) {
	d := NewBuilder(3, "web").
		Argv([]string{"/bin/sleep", "3600"}).
		Dir("/var/run/web").
		Env(map[string]string{"FOO": "bar"}).
		Credentials("nobody", "nogroup").
		Stdio("/var/log/web.log", "/var/log/web.err", false).
		Build()

	if d.WatchID != 3 || d.WatchName != "web" {
		t.Fatalf("unexpected identity: %+v", d)
	}
	if len(d.Argv) != 2 || d.Argv[0] != "/bin/sleep" {
		t.Fatalf("unexpected argv: %+v", d.Argv)
	}
	if d.Env["FOO"] != "bar" {
		t.Fatalf("expected env to round-trip, got %+v", d.Env)
	}
	if d.UID != "nobody" || d.GID != "nogroup" {
		t.Fatalf("expected credentials to round-trip, got uid=%q gid=%q", d.UID, d.GID)
	}
	if d.Stop {
		t.Fatal("did not expect Stop to be set for a start descriptor")
	}
}

func TestBuilderBuildsStopDescriptor(t *testing.T) {
	d := NewBuilder(3, "web").
		Argv([]string{"/bin/sh", "-c", "kill $NYX_PID"}).
		AsStop(4242).
		Build()

	if !d.Stop || d.NyxPid != 4242 {
		t.Fatalf("expected stop descriptor with NyxPid=4242, got %+v", d)
	}
}

func TestEncodeDecodeDescriptorRoundTrip(t *testing.T) {
	want := NewBuilder(1, "a").
		Argv([]string{"/bin/true"}).
		Env(map[string]string{"X": "1"}).
		Build()

	s, err := EncodeDescriptor(want)
	if err != nil {
		t.Fatalf("EncodeDescriptor: %v", err)
	}
	got, err := DecodeDescriptor(s)
	if err != nil {
		t.Fatalf("DecodeDescriptor: %v", err)
	}
	if got.WatchName != want.WatchName || got.Argv[0] != want.Argv[0] || got.Env["X"] != "1" {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestDecodeDescriptorInvalidJSON(t *testing.T) {
	if _, err := DecodeDescriptor("not json"); err == nil {
		t.Fatal("expected error decoding invalid JSON")
	}
}

func TestMarkerDetection(t *testing.T) {
	if !IsForkerInvocation([]string{ForkerMarker}) {
		t.Fatal("expected forker marker to be recognized")
	}
	if !IsExecInvocation([]string{ExecMarker, "extra"}) {
		t.Fatal("expected exec marker to be recognized")
	}
	if !IsIntermediateInvocation([]string{IntermediateMarker}) {
		t.Fatal("expected intermediate marker to be recognized")
	}
	if IsForkerInvocation([]string{"/usr/bin/nyx"}) {
		t.Fatal("did not expect a normal invocation to match the forker marker")
	}
	if IsForkerInvocation(nil) {
		t.Fatal("did not expect an empty argv to match")
	}
}
