package sdpath

import (
	"context"
	"errors"
	"testing"
)

func TestURIRoundTrip(t *testing.T) {
	cases := []SdPath{
		Physical("devc_abc", "/home/user/docs"),
		Content("deadbeefcafef00d"),
	}
	for _, original := range cases {
		uri := original.ToURI()
		parsed, err := ParseURI(uri)
		if err != nil {
			t.Fatalf("ParseURI(%q) failed: %v", uri, err)
		}
		if !parsed.Equal(original) {
			t.Errorf("round trip mismatch: %+v != %+v (uri %q)", parsed, original, uri)
		}
	}
}

func TestParseURIBareLocalPath(t *testing.T) {
	parsed, err := ParseURI("/mnt/data/file.txt")
	if err != nil {
		t.Fatalf("ParseURI failed: %v", err)
	}
	if !parsed.IsPhysical() || parsed.DeviceID != "" || parsed.Path != "/mnt/data/file.txt" {
		t.Errorf("unexpected parse result: %+v", parsed)
	}
}

func TestJoinPanicsOnContent(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected Join on a content path to panic")
		}
	}()
	Content("abc").Join("x")
}

func TestParent(t *testing.T) {
	p := Physical("devc_abc", "/a/b/c")
	parent, err := p.Parent()
	if err != nil {
		t.Fatalf("Parent failed: %v", err)
	}
	if parent.Path != "/a/b" {
		t.Errorf("unexpected parent path: %s", parent.Path)
	}
	if _, err := Content("x").Parent(); err == nil {
		t.Error("expected Parent on a content path to fail")
	}
}

func TestAsLocalPath(t *testing.T) {
	p := Physical("devc_abc", "/a/b")
	if path, ok := p.AsLocalPath("devc_abc"); !ok || path != "/a/b" {
		t.Errorf("expected local path match, got %q %v", path, ok)
	}
	if _, ok := p.AsLocalPath("devc_other"); ok {
		t.Error("expected no match for a different device")
	}
}

type fakeResolver struct {
	local     string
	activeLib string
	instances map[string][]string
	online    map[string]bool
	paths     map[string]string
}

func (f *fakeResolver) LocalDeviceID() string { return f.local }
func (f *fakeResolver) ActiveLibraryID() (string, bool) {
	if f.activeLib == "" {
		return "", false
	}
	return f.activeLib, true
}
func (f *fakeResolver) InstancesForContent(_ context.Context, contentID string) ([]string, error) {
	return f.instances[contentID], nil
}
func (f *fakeResolver) IsDeviceOnline(deviceID string) bool { return f.online[deviceID] }
func (f *fakeResolver) PathOnDevice(_ context.Context, deviceID, contentID string) (string, error) {
	return f.paths[deviceID+"/"+contentID], nil
}

func TestResolvePhysicalPassthrough(t *testing.T) {
	p := Physical("devc_abc", "/a")
	resolved, err := p.Resolve(context.Background(), &fakeResolver{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !resolved.Equal(p) {
		t.Errorf("expected passthrough, got %+v", resolved)
	}
}

func TestResolveContentPrefersLocal(t *testing.T) {
	resolver := &fakeResolver{
		local:     "devc_local",
		activeLib: "libr_1",
		instances: map[string][]string{"cid": {"devc_remote", "devc_local"}},
		online:    map[string]bool{"devc_remote": true},
		paths: map[string]string{
			"devc_local/cid":  "/local/path",
			"devc_remote/cid": "/remote/path",
		},
	}
	resolved, err := Content("cid").Resolve(context.Background(), resolver)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.DeviceID != "devc_local" || resolved.Path != "/local/path" {
		t.Errorf("expected local device preferred, got %+v", resolved)
	}
}

func TestResolveContentNoInstances(t *testing.T) {
	resolver := &fakeResolver{local: "devc_local", activeLib: "libr_1"}
	_, err := Content("cid").Resolve(context.Background(), resolver)
	if !errors.Is(err, ErrNoOnlineInstancesFound) {
		t.Errorf("expected ErrNoOnlineInstancesFound, got %v", err)
	}
}

func TestResolveNoActiveLibrary(t *testing.T) {
	resolver := &fakeResolver{local: "devc_local"}
	_, err := Content("cid").Resolve(context.Background(), resolver)
	if !errors.Is(err, ErrNoActiveLibrary) {
		t.Errorf("expected ErrNoActiveLibrary, got %v", err)
	}
}

func TestResolveDeviceOffline(t *testing.T) {
	resolver := &fakeResolver{
		local:     "devc_local",
		activeLib: "libr_1",
		instances: map[string][]string{"cid": {"devc_remote"}},
		online:    map[string]bool{"devc_remote": false},
	}
	_, err := Content("cid").Resolve(context.Background(), resolver)
	if !errors.Is(err, ErrDeviceOffline) {
		t.Errorf("expected ErrDeviceOffline, got %v", err)
	}
}

func TestBatchByDevice(t *testing.T) {
	batch := NewBatch(
		Physical("devc_a", "/x"),
		Physical("devc_b", "/y"),
		Physical("devc_a", "/z"),
		Content("cid"),
	)
	buckets := batch.ByDevice()
	if len(buckets["devc_a"]) != 2 {
		t.Errorf("expected 2 paths for devc_a, got %d", len(buckets["devc_a"]))
	}
	if len(buckets["devc_b"]) != 1 {
		t.Errorf("expected 1 path for devc_b, got %d", len(buckets["devc_b"]))
	}
	if len(buckets[""]) != 1 {
		t.Errorf("expected 1 unresolved content path, got %d", len(buckets[""]))
	}
}

func TestBatchLocalRemote(t *testing.T) {
	batch := NewBatch(
		Physical("devc_local", "/x"),
		Physical("devc_remote", "/y"),
		Content("cid"),
	)
	if len(batch.Local("devc_local")) != 1 {
		t.Error("expected one local path")
	}
	if len(batch.Remote("devc_local")) != 2 {
		t.Error("expected two remote-or-unresolved paths")
	}
}
