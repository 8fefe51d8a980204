package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/backlog/pkg/types"
)

// Backlog dump file names, one JSON record per line.
const (
	ProjectsFile    = "projects.jsonl"
	EpicsFile       = "epics.jsonl"
	FeaturesFile    = "features.jsonl"
	StoriesFile     = "stories.jsonl"
	SprintsFile     = "sprints.jsonl"
	TasksFile       = "tasks.jsonl"
	WorklogsFile    = "worklogs.jsonl"
	MembershipsFile = "memberships.jsonl"
)

// Counts reports how many records of each kind were exported or imported.
type Counts struct {
	Projects    int `json:"projects"`
	Epics       int `json:"epics"`
	Features    int `json:"features"`
	Stories     int `json:"stories"`
	Sprints     int `json:"sprints"`
	Tasks       int `json:"tasks"`
	Worklogs    int `json:"worklogs"`
	Memberships int `json:"memberships"`
}

// Export writes one project's backlog to dir as JSONL files. Each file is
// written atomically.
func Export(ctx context.Context, r types.Reader, projectID, dir string) (*Counts, error) {
	project, err := r.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", projectID, err)
	}
	epics, err := r.FindEpicsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	features, err := r.FindFeaturesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	storyRows, err := r.FindStoriesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	stories := make([]types.Story, len(storyRows))
	for i, row := range storyRows {
		stories[i] = row.Story
	}
	sprints, err := r.FindSprintsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks, err := r.FindTasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	entries, err := r.RecentWorklogs(ctx, projectID, 0)
	if err != nil {
		return nil, err
	}
	worklogs := make([]types.Worklog, len(entries))
	for i, e := range entries {
		worklogs[i] = e.Worklog
	}
	var memberships []types.Membership
	for _, s := range sprints {
		ms, err := r.FindMembershipsBySprint(ctx, s.SprintID)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, ms...)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir %s: %w", dir, err)
	}
	files := []struct {
		name    string
		records any
	}{
		{ProjectsFile, []types.Project{*project}},
		{EpicsFile, epics},
		{FeaturesFile, features},
		{StoriesFile, stories},
		{SprintsFile, sprints},
		{TasksFile, tasks},
		{WorklogsFile, worklogs},
		{MembershipsFile, memberships},
	}
	for _, f := range files {
		records, err := encodeRecords(f.records)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", f.name, err)
		}
		if err := writeJSONL(filepath.Join(dir, f.name), records); err != nil {
			return nil, err
		}
	}

	return &Counts{
		Projects:    1,
		Epics:       len(epics),
		Features:    len(features),
		Stories:     len(stories),
		Sprints:     len(sprints),
		Tasks:       len(tasks),
		Worklogs:    len(worklogs),
		Memberships: len(memberships),
	}, nil
}

// Import loads a dump written by Export into s in a single transaction, in
// dependency order. Missing files are treated as empty; malformed lines
// are skipped.
func Import(ctx context.Context, s types.Store, dir string) (*Counts, error) {
	var (
		projects    []types.Project
		epics       []types.Epic
		features    []types.Feature
		stories     []types.Story
		sprints     []types.Sprint
		tasks       []types.Task
		worklogs    []types.Worklog
		memberships []types.Membership
	)
	loads := []struct {
		name string
		dest any
	}{
		{ProjectsFile, &projects},
		{EpicsFile, &epics},
		{FeaturesFile, &features},
		{StoriesFile, &stories},
		{SprintsFile, &sprints},
		{TasksFile, &tasks},
		{WorklogsFile, &worklogs},
		{MembershipsFile, &memberships},
	}
	for _, l := range loads {
		if err := loadRecords(filepath.Join(dir, l.name), l.dest); err != nil {
			return nil, err
		}
	}

	err := s.WithTx(ctx, func(tx types.Tx) error {
		for i := range projects {
			if err := tx.InsertProject(ctx, &projects[i]); err != nil {
				return fmt.Errorf("project %s: %w", projects[i].ProjectID, err)
			}
		}
		for i := range epics {
			if err := tx.InsertEpic(ctx, &epics[i]); err != nil {
				return fmt.Errorf("epic %s: %w", epics[i].EpicID, err)
			}
		}
		for i := range features {
			if err := tx.InsertFeature(ctx, &features[i]); err != nil {
				return fmt.Errorf("feature %s: %w", features[i].FeatureID, err)
			}
		}
		for i := range stories {
			if err := tx.InsertStory(ctx, &stories[i]); err != nil {
				return fmt.Errorf("story %s: %w", stories[i].StoryID, err)
			}
		}
		for i := range sprints {
			if err := tx.InsertSprint(ctx, &sprints[i]); err != nil {
				return fmt.Errorf("sprint %s: %w", sprints[i].SprintID, err)
			}
		}
		for i := range tasks {
			if err := tx.InsertTask(ctx, &tasks[i]); err != nil {
				return fmt.Errorf("task %s: %w", tasks[i].TaskID, err)
			}
		}
		for i := range worklogs {
			if err := tx.InsertWorklog(ctx, &worklogs[i]); err != nil {
				return fmt.Errorf("worklog %s: %w", worklogs[i].WorklogID, err)
			}
		}
		for i := range memberships {
			if err := tx.InsertMembership(ctx, &memberships[i]); err != nil {
				return fmt.Errorf("membership %s: %w", memberships[i].MembershipID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", dir, err)
	}

	return &Counts{
		Projects:    len(projects),
		Epics:       len(epics),
		Features:    len(features),
		Stories:     len(stories),
		Sprints:     len(sprints),
		Tasks:       len(tasks),
		Worklogs:    len(worklogs),
		Memberships: len(memberships),
	}, nil
}

// encodeRecords marshals each element of a slice into its own JSON record.
func encodeRecords(slice any) ([]json.RawMessage, error) {
	data, err := json.Marshal(slice)
	if err != nil {
		return nil, err
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// loadRecords decodes every record of a JSONL file into dest, a pointer to
// a slice. A missing file leaves dest empty.
func loadRecords(path string, dest any) error {
	records, err := readJSONL(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", step, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
