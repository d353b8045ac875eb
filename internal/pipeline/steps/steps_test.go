package steps

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"harvester/internal/github"
	"harvester/internal/logger"
	"harvester/internal/pipeline"
	"harvester/internal/store"
)

type fakeFacts struct {
	prExists  bool
	existsErr error
	insertErr error
	inserted  []string
}

func (f *fakeFacts) CommitExists(ctx context.Context, subjectID int64, repository, sha string) (bool, error) {
	return f.prExists, f.existsErr
}

func (f *fakeFacts) InsertCommit(ctx context.Context, c *store.Commit) error {
	f.inserted = append(f.inserted, c.SHA)
	return f.insertErr
}

func (f *fakeFacts) IssueExists(ctx context.Context, subjectID int64, repository string, number int) (bool, error) {
	return f.prExists, f.existsErr
}

func (f *fakeFacts) InsertIssue(ctx context.Context, i *store.Issue) error {
	f.inserted = append(f.inserted, i.Repository)
	return f.insertErr
}

func (f *fakeFacts) PullRequestExists(ctx context.Context, subjectID int64, repository string, number int) (bool, error) {
	return f.prExists, f.existsErr
}

func (f *fakeFacts) InsertPullRequest(ctx context.Context, pr *store.PullRequest) error {
	f.inserted = append(f.inserted, pr.Repository)
	return f.insertErr
}

func (f *fakeFacts) UpsertContributedRepo(ctx context.Context, r *store.ContributedRepo) error {
	f.inserted = append(f.inserted, r.Repository)
	return f.insertErr
}

func (f *fakeFacts) FactCounts(ctx context.Context, subjectID int64) (int, int, int, int, error) {
	return 1, 2, 3, 4, nil
}

type fakeSubjects struct {
	subject *store.Subject
	err     error
}

func (f *fakeSubjects) GetSubject(ctx context.Context, id int64) (*store.Subject, error) {
	return f.subject, f.err
}

func (f *fakeSubjects) ActiveSubjectIDs(ctx context.Context) ([]int64, error) { return nil, nil }

func prNode(repo string, number int) github.PullRequestNode {
	n := github.PullRequestNode{Number: number, State: "MERGED", Merged: true, CreatedAt: time.Now()}
	n.Repository.NameWithOwner = repo
	return n
}

func testDeps(facts *fakeFacts) Deps {
	return Deps{
		Store:  &StoreSet{Facts: facts},
		Config: pipeline.DefaultChunkConfig(),
		Logger: logger.New(),
	}
}

func TestPullRequestProcess_InsertsNewFact(t *testing.T) {
	facts := &fakeFacts{}
	p := &PullRequestProvider{deps: testDeps(facts)}

	err := p.process(context.Background(), &pipeline.RunContext{SubjectID: 42}, prNode("a/repo", 7))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(facts.inserted) != 1 {
		t.Errorf("got %d inserts, want 1", len(facts.inserted))
	}
}

func TestPullRequestProcess_ExistingFactIsIdempotent(t *testing.T) {
	facts := &fakeFacts{prExists: true}
	p := &PullRequestProvider{deps: testDeps(facts)}

	err := p.process(context.Background(), &pipeline.RunContext{SubjectID: 42}, prNode("a/repo", 7))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(facts.inserted) != 0 {
		t.Errorf("got %d inserts for an existing fact, want 0", len(facts.inserted))
	}
}

func TestPullRequestProcess_MissingNaturalKeyIsBadItem(t *testing.T) {
	p := &PullRequestProvider{deps: testDeps(&fakeFacts{})}

	err := p.process(context.Background(), &pipeline.RunContext{SubjectID: 42}, prNode("", 7))
	if !pipeline.IsBadItem(err) {
		t.Errorf("got %v, want a BadItem error", err)
	}

	err = p.process(context.Background(), &pipeline.RunContext{SubjectID: 42}, prNode("a/repo", 0))
	if !pipeline.IsBadItem(err) {
		t.Errorf("got %v, want a BadItem error", err)
	}
}

func TestPullRequestProcess_StorageErrorIsTransient(t *testing.T) {
	facts := &fakeFacts{existsErr: errors.New("connection reset")}
	p := &PullRequestProvider{deps: testDeps(facts)}

	err := p.process(context.Background(), &pipeline.RunContext{SubjectID: 42}, prNode("a/repo", 7))
	if !pipeline.IsTransient(err) {
		t.Errorf("got %v, want a Transient error", err)
	}
}

func TestCommitProcess_ClassifiesFaults(t *testing.T) {
	p := &CommitProvider{deps: testDeps(&fakeFacts{})}

	err := p.process(context.Background(), &pipeline.RunContext{SubjectID: 42},
		repoCommit{Repository: "a/repo", Node: github.CommitNode{OID: ""}})
	if !pipeline.IsBadItem(err) {
		t.Errorf("got %v, want a BadItem error for a commit without sha", err)
	}

	p = &CommitProvider{deps: testDeps(&fakeFacts{insertErr: errors.New("lock timeout")})}
	err = p.process(context.Background(), &pipeline.RunContext{SubjectID: 42},
		repoCommit{Repository: "a/repo", Node: github.CommitNode{OID: "abc123"}})
	if !pipeline.IsTransient(err) {
		t.Errorf("got %v, want a Transient error for a storage failure", err)
	}
}

func TestCredentialStep_LoadsSubjectIntoContext(t *testing.T) {
	deps := testDeps(&fakeFacts{})
	deps.Store.Subjects = &fakeSubjects{subject: &store.Subject{
		ID: 42, Login: "octocat", Token: "tok", NodeID: "node-1",
	}}

	p := &CredentialProvider{deps: deps}
	rc := &pipeline.RunContext{SubjectID: 42}
	if err := p.Build().Execute(context.Background(), rc); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if rc.Login != "octocat" || rc.Token != "tok" || rc.NodeID != "node-1" {
		t.Errorf("run context not filled: %+v", rc)
	}
}

func TestCredentialStep_UnknownSubjectFails(t *testing.T) {
	deps := testDeps(&fakeFacts{})
	deps.Store.Subjects = &fakeSubjects{err: sql.ErrNoRows}

	p := &CredentialProvider{deps: deps}
	err := p.Build().Execute(context.Background(), &pipeline.RunContext{SubjectID: 99})
	if err == nil {
		t.Error("expected error for an unregistered subject, got nil")
	}
}

func TestSplitRepo(t *testing.T) {
	if owner, name, ok := splitRepo("octocat/hello"); !ok || owner != "octocat" || name != "hello" {
		t.Errorf("got %q/%q (%t)", owner, name, ok)
	}
	for _, bad := range []string{"", "noslash", "/leading", "trailing/"} {
		if _, _, ok := splitRepo(bad); ok {
			t.Errorf("splitRepo(%q) should fail", bad)
		}
	}
}

type fakePlatform struct {
	current    *store.PlatformStatistics
	recomputed int
}

func (f *fakePlatform) GetPlatformStatistics(ctx context.Context) (*store.PlatformStatistics, error) {
	return f.current, nil
}

func (f *fakePlatform) RecomputePlatformStatistics(ctx context.Context, at time.Time) (*store.PlatformStatistics, error) {
	f.recomputed++
	return &store.PlatformStatistics{Subjects: 3, ComputedAt: at}, nil
}

func platformStep(fp *fakePlatform) pipeline.Step {
	p := &PlatformAverageProvider{deps: Deps{
		Store:  &StoreSet{Platform: fp},
		Logger: logger.New(),
	}}
	return p.Build()
}

func TestPlatformAverageStep_RecountsWhenMissing(t *testing.T) {
	fp := &fakePlatform{}

	if err := platformStep(fp).Execute(context.Background(), &pipeline.RunContext{SubjectID: 1}); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if fp.recomputed != 1 {
		t.Errorf("recomputed %d times, want 1 when no row exists", fp.recomputed)
	}
}

func TestPlatformAverageStep_RecountsWhenStale(t *testing.T) {
	fp := &fakePlatform{current: &store.PlatformStatistics{
		ComputedAt: time.Now().Add(-2 * time.Hour),
	}}

	if err := platformStep(fp).Execute(context.Background(), &pipeline.RunContext{SubjectID: 1}); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if fp.recomputed != 1 {
		t.Errorf("recomputed %d times, want 1 for a stale row", fp.recomputed)
	}
}

func TestPlatformAverageStep_FreshRowSkipsRecount(t *testing.T) {
	fp := &fakePlatform{current: &store.PlatformStatistics{
		ComputedAt: time.Now().Add(-time.Minute),
	}}

	if err := platformStep(fp).Execute(context.Background(), &pipeline.RunContext{SubjectID: 1}); err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if fp.recomputed != 0 {
		t.Errorf("recomputed %d times, want 0 while the row is fresh", fp.recomputed)
	}
}

func TestAll_ReturnsOrderedProviders(t *testing.T) {
	providers := All(testDeps(&fakeFacts{}))
	for i := 1; i < len(providers); i++ {
		if providers[i].Order() <= providers[i-1].Order() {
			t.Errorf("providers not ascending at %d: %s", i, providers[i].Name())
		}
	}
}
