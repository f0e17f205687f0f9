package daemon

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/ibeckermayer/tenshi/internal/app"
	"github.com/ibeckermayer/tenshi/internal/config"
	"github.com/ibeckermayer/tenshi/internal/scheduler"
	"github.com/ibeckermayer/tenshi/internal/types"
)

type fakeTriggerer struct {
	urls []string
	err  error
}

func (f *fakeTriggerer) Trigger(ctx context.Context, req app.TriggerRequest) (*types.TriggerResult, error) {
	f.urls = append(f.urls, req.URL)
	if f.err != nil {
		return nil, f.err
	}
	return &types.TriggerResult{Status: "Triggered", URL: req.URL, Cookies: 2}, nil
}

func TestScheduleRefreshNamesJobs(t *testing.T) {
	s, err := scheduler.New("UTC")
	if err != nil {
		t.Fatal(err)
	}
	jobs := []config.RefreshJob{
		{Name: "toongod", Schedule: "@every 30m", URL: "https://toongod.org/"},
		{Schedule: "0 */6 * * *", URL: "https://example.org/"},
	}
	if err := ScheduleRefresh(s, &fakeTriggerer{}, jobs); err != nil {
		t.Fatalf("ScheduleRefresh: %v", err)
	}

	var names []string
	for _, info := range s.ListJobs() {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "refresh-2,toongod" {
		t.Fatalf("unexpected jobs %v", names)
	}
}

func TestScheduleRefreshRejectsBadSchedule(t *testing.T) {
	s, err := scheduler.New("UTC")
	if err != nil {
		t.Fatal(err)
	}
	err = ScheduleRefresh(s, &fakeTriggerer{}, []config.RefreshJob{{Name: "x", Schedule: "whenever", URL: "https://x.org/"}})
	if err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestRefreshJobTriggers(t *testing.T) {
	f := &fakeTriggerer{}
	if err := RefreshJob(f, "https://toongod.org/")(context.Background()); err != nil {
		t.Fatalf("job: %v", err)
	}
	if len(f.urls) != 1 || f.urls[0] != "https://toongod.org/" {
		t.Fatalf("unexpected triggers %v", f.urls)
	}

	f.err = errors.New("window not found")
	err := RefreshJob(f, "https://toongod.org/")(context.Background())
	if err == nil || !strings.Contains(err.Error(), "window not found") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestRunStartupRefreshOnlyMarkedJobs(t *testing.T) {
	s, err := scheduler.New("UTC")
	if err != nil {
		t.Fatal(err)
	}
	jobs := []config.RefreshJob{
		{Name: "toongod", Schedule: "@every 30m", URL: "https://toongod.org/", RunOnStart: true},
		{Schedule: "@every 1h", URL: "https://example.org/"},
		{Schedule: "@every 1h", URL: "https://manhwa.org/", RunOnStart: true},
	}

	f := &fakeTriggerer{}
	if failed := RunStartupRefresh(s, f, jobs); failed != 0 {
		t.Fatalf("expected no failures, got %d", failed)
	}
	if strings.Join(f.urls, ",") != "https://toongod.org/,https://manhwa.org/" {
		t.Fatalf("unexpected startup triggers %v", f.urls)
	}

	f = &fakeTriggerer{err: errors.New("window not found")}
	if failed := RunStartupRefresh(s, f, jobs); failed != 2 {
		t.Fatalf("expected 2 failures, got %d", failed)
	}
}
