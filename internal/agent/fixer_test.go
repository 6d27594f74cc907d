package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"log/slog"
)

type fakeRepo struct {
	files     map[string]string
	shas      map[string]string
	commits   []string
	readErr   error
	writeErr  error
	wroteSHA  string
	wrotePath string
}

func (f *fakeRepo) ReadFile(ctx context.Context, path string) (string, string, error) {
	if f.readErr != nil {
		return "", "", f.readErr
	}
	content, ok := f.files[path]
	if !ok {
		return "", "", errors.New("not found: " + path)
	}
	return content, f.shas[path], nil
}

func (f *fakeRepo) WriteFile(ctx context.Context, path, content, message, sha string) (string, error) {
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.files[path] = content
	f.wrotePath = path
	f.wroteSHA = sha
	f.commits = append(f.commits, message)
	return "commit-abc123", nil
}

func newTestFixer(repo Repo) *Fixer {
	return NewFixer("test-key", "test-model", repo, slog.Default())
}

func decodeToolResult(t *testing.T, raw string) toolResult {
	t.Helper()
	var res toolResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("tool result is not JSON: %v (%q)", err, raw)
	}
	return res
}

func TestDispatchToolReadFile(t *testing.T) {
	repo := &fakeRepo{
		files: map[string]string{"app/db.py": "pool_size = 5"},
		shas:  map[string]string{"app/db.py": "sha-1"},
	}
	f := newTestFixer(repo)

	res := decodeToolResult(t, f.dispatchTool(context.Background(),
		"read_repo_file", `{"file_path":"app/db.py"}`))

	if !res.OK {
		t.Fatalf("not ok: %s", res.Error)
	}
	if res.Content != "pool_size = 5" {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestDispatchToolPushReadsShaFirst(t *testing.T) {
	repo := &fakeRepo{
		files: map[string]string{"app/db.py": "pool_size = 5"},
		shas:  map[string]string{"app/db.py": "sha-1"},
	}
	f := newTestFixer(repo)

	res := decodeToolResult(t, f.dispatchTool(context.Background(), "push_repo_fix",
		`{"file_path":"app/db.py","file_content":"pool_size = 20","commit_message":"raise pool size"}`))

	if !res.OK {
		t.Fatalf("not ok: %s", res.Error)
	}
	if res.CommitSHA != "commit-abc123" {
		t.Fatalf("commit sha = %q", res.CommitSHA)
	}
	if repo.wroteSHA != "sha-1" {
		t.Fatalf("write used sha %q, want the blob sha from the preceding read", repo.wroteSHA)
	}
	if repo.files["app/db.py"] != "pool_size = 20" {
		t.Fatalf("file not updated: %q", repo.files["app/db.py"])
	}
}

func TestDispatchToolReportsErrorsToModel(t *testing.T) {
	f := newTestFixer(&fakeRepo{readErr: errors.New("github: 401")})

	res := decodeToolResult(t, f.dispatchTool(context.Background(),
		"read_repo_file", `{"file_path":"app/db.py"}`))
	if res.OK || res.Error == "" {
		t.Fatalf("expected error result, got %+v", res)
	}

	res = decodeToolResult(t, f.dispatchTool(context.Background(), "read_repo_file", `{`))
	if res.Error == "" {
		t.Fatal("malformed args should produce an error result")
	}

	res = decodeToolResult(t, f.dispatchTool(context.Background(), "delete_everything", `{}`))
	if res.Error == "" {
		t.Fatal("unknown tool should produce an error result")
	}
}
