package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseNavlogs_Array(t *testing.T) {
	in := `  [{"id": "1", "url": "https://a.example", "title": "A", "tab_id": "t"},
	        {"id": "2", "url": "https://b.example", "logged_at": "2024-03-01T10:00:00.000001"}]`
	navlogs, err := parseNavlogs(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parseNavlogs failed: %v", err)
	}
	if len(navlogs) != 2 {
		t.Fatalf("expected 2 navlogs, got %d", len(navlogs))
	}
	if navlogs[0].TabID != "t" || navlogs[1].LoggedAt != "2024-03-01T10:00:00.000001" {
		t.Errorf("navlogs = %+v", navlogs)
	}
}

func TestParseNavlogs_Lines(t *testing.T) {
	in := "{\"id\": \"1\", \"url\": \"https://a.example\"}\n\n{\"id\": \"2\", \"url\": \"https://b.example\"}\n"
	navlogs, err := parseNavlogs(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parseNavlogs failed: %v", err)
	}
	if len(navlogs) != 2 || navlogs[1].URL != "https://b.example" {
		t.Errorf("navlogs = %+v", navlogs)
	}
}

func TestParseNavlogs_EmptyAndInvalid(t *testing.T) {
	navlogs, err := parseNavlogs(strings.NewReader("   \n"))
	if err != nil || navlogs != nil {
		t.Errorf("empty input = (%v, %v)", navlogs, err)
	}
	if _, err := parseNavlogs(strings.NewReader(`{"id": 1`)); err == nil {
		t.Error("expected an error for truncated JSON")
	}
}

func TestDrainInbox(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("b.jsonl", `{"id": "2", "url": "https://b.example"}`)
	write("a.json", `[{"id": "1", "url": "https://a.example"}]`)
	write("broken.json", `[{`)
	write("notes.txt", "ignored")

	navlogs, files, err := drainInbox(dir)
	if err != nil {
		t.Fatalf("drainInbox failed: %v", err)
	}
	if len(navlogs) != 2 || navlogs[0].ID != "1" || navlogs[1].ID != "2" {
		t.Errorf("navlogs = %+v", navlogs)
	}
	if len(files) != 2 {
		t.Errorf("files = %v", files)
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.json.bad")); err != nil {
		t.Errorf("broken file should be set aside: %v", err)
	}

	markDone(files)
	again, _, err := drainInbox(dir)
	if err != nil || len(again) != 0 {
		t.Errorf("processed files should not be read again: %v, %v", again, err)
	}
}
