package github

import (
	"errors"
	"strings"
	"testing"
)

type mockCmd struct {
	calls   [][]string
	results []mockResult
	idx     int
}

type mockResult struct {
	output string
	err    error
}

func (m *mockCmd) Run(args ...string) (string, error) {
	m.calls = append(m.calls, args)
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.output, r.err
}

type mockGitRunner struct {
	calls   []gitCall
	results []mockResult
	idx     int
}

type gitCall struct {
	Dir  string
	Args []string
}

func (m *mockGitRunner) RunGit(dir string, args ...string) (string, error) {
	m.calls = append(m.calls, gitCall{Dir: dir, Args: args})
	if m.idx >= len(m.results) {
		return "", nil
	}
	r := m.results[m.idx]
	m.idx++
	return r.output, r.err
}

func TestCreatePR(t *testing.T) {
	mock := &mockCmd{
		results: []mockResult{{output: "https://github.com/org/repo/pull/1"}},
	}

	client := NewClient(mock)
	result, err := client.CreatePR(PRCreateOpts{
		Title:  "Fix division-by-zero: Guard the divisor against zero",
		Body:   "report",
		Branch: "fixfactory/run-6f1c2b0e",
		Base:   "main",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.URL != "https://github.com/org/repo/pull/1" {
		t.Errorf("expected URL, got %q", result.URL)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.calls))
	}
	args := strings.Join(mock.calls[0], " ")
	if !strings.Contains(args, "--head fixfactory/run-6f1c2b0e") || !strings.Contains(args, "--base main") {
		t.Errorf("unexpected args: %s", args)
	}
}

func TestCreatePR_NoBase(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{output: "url"}}}
	if _, err := NewClient(mock).CreatePR(PRCreateOpts{Title: "t", Branch: "b"}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.Join(mock.calls[0], " "), "--base") {
		t.Errorf("--base should be omitted: %v", mock.calls[0])
	}
}

func TestFindPRByBranch(t *testing.T) {
	mock := &mockCmd{results: []mockResult{
		{output: `[{"url":"https://github.com/org/repo/pull/7"}]`},
		{output: `[]`},
		{output: `not json`},
	}}
	client := NewClient(mock)

	pr, err := client.FindPRByBranch("fixfactory/run-1")
	if err != nil {
		t.Fatal(err)
	}
	if pr == nil || pr.URL != "https://github.com/org/repo/pull/7" {
		t.Errorf("unexpected PR: %+v", pr)
	}

	pr, err = client.FindPRByBranch("fixfactory/run-2")
	if err != nil {
		t.Fatal(err)
	}
	if pr != nil {
		t.Errorf("expected nil for no PRs, got %+v", pr)
	}

	if _, err := client.FindPRByBranch("fixfactory/run-3"); err == nil {
		t.Error("expected parse error")
	}
}

func TestCreateIssue(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{output: "https://github.com/org/repo/issues/3"}}}
	url, err := NewClient(mock).CreateIssue(IssueCreateOpts{
		Title:  "Fix missing-key: Use a default for absent keys",
		Body:   "body",
		Labels: []string{"bug", "fixfactory"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://github.com/org/repo/issues/3" {
		t.Errorf("got %q", url)
	}
	args := strings.Join(mock.calls[0], " ")
	if !strings.HasPrefix(args, "issue create") || !strings.Contains(args, "--label bug --label fixfactory") {
		t.Errorf("unexpected args: %s", args)
	}
}

func TestCreateIssue_Error(t *testing.T) {
	mock := &mockCmd{results: []mockResult{{err: errors.New("gh: not logged in")}}}
	_, err := NewClient(mock).CreateIssue(IssueCreateOpts{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "create issue") {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestPushBranch(t *testing.T) {
	gitMock := &mockGitRunner{}
	client := NewClientWithGit(&mockCmd{}, gitMock)

	if err := client.PushBranch("/repo", "fixfactory/run-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gitMock.calls) != 1 {
		t.Fatalf("expected 1 git call, got %d", len(gitMock.calls))
	}
	call := gitMock.calls[0]
	if call.Dir != "/repo" {
		t.Errorf("expected dir /repo, got %q", call.Dir)
	}
	if strings.Join(call.Args, " ") != "push -u origin fixfactory/run-1" {
		t.Errorf("unexpected args: %v", call.Args)
	}
}

func TestPushBranch_RejectsDashPrefix(t *testing.T) {
	gitMock := &mockGitRunner{}
	client := NewClientWithGit(&mockCmd{}, gitMock)

	if err := client.PushBranch("/repo", "--force"); err == nil {
		t.Fatal("expected error for dash-prefixed branch")
	}
	if len(gitMock.calls) != 0 {
		t.Errorf("expected no git calls, got %d", len(gitMock.calls))
	}
}

func TestPushBranch_NoGitRunner(t *testing.T) {
	client := NewClient(&mockCmd{})
	err := client.PushBranch("/repo", "main")
	if err == nil || !strings.Contains(err.Error(), "git runner not configured") {
		t.Errorf("expected not-configured error, got %v", err)
	}
}

func TestNewClient_DetectsGitRunner(t *testing.T) {
	client := NewClient(&ExecRunner{})
	if client.git == nil {
		t.Error("ExecRunner should be used as the git runner")
	}
}
