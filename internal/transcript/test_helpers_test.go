package transcript

import "testing"

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustMemoryID(t *testing.T, value string) MemoryID {
	t.Helper()
	id, err := NewMemoryID(value)
	if err != nil {
		t.Fatalf("unexpected memory id error: %v", err)
	}
	return id
}

func mustDate(t *testing.T, value string) Date {
	t.Helper()
	date, err := NewDate(value)
	if err != nil {
		t.Fatalf("unexpected date error: %v", err)
	}
	return date
}
