package isolation

import "testing"

func TestBindMountRejectsRelativePath(t *testing.T) {
	if err := bindMount(t.TempDir(), "relative/path", false); err == nil {
		t.Fatal("expected an error for a non-absolute bind mount source")
	}
}

func TestBindMountRejectsMissingSource(t *testing.T) {
	if err := bindMount(t.TempDir(), "/no/such/source/path", false); err == nil {
		t.Fatal("expected an error when the bind mount source doesn't exist")
	}
}
