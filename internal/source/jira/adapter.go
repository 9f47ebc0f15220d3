package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/source"
)

// Options configures field mapping and metric queries.
type Options struct {
	StoryPointsField string
	SprintField      string
	RecentDays       int
	BlockerJQL       string
	PageSize         int

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// incrementalOverlap widens the relative update bound of incremental
// searches to absorb clock skew between this host and Jira.
const incrementalOverlap = 2 * time.Minute

// Adapter implements source.Remote for Jira.
type Adapter struct {
	client *Client
	cloud  bool
	opts   Options
}

var _ source.Remote = (*Adapter)(nil)

// NewAdapter creates a new Jira remote adapter.
func NewAdapter(baseURL string, creds Credentials, opts Options) *Adapter {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.RecentDays <= 0 {
		opts.RecentDays = 7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Adapter{
		client: NewClient(baseURL, creds),
		cloud:  creds.Email != "",
		opts:   opts,
	}
}

// FromConfig builds an adapter from application configuration and a
// resolved token.
func FromConfig(cfg model.JiraConfig, token string) *Adapter {
	creds := Credentials{Token: token}
	if cfg.Auth == "basic" {
		creds.Email = cfg.Email
	}
	return NewAdapter(cfg.BaseURL, creds, Options{
		StoryPointsField: cfg.StoryPointsField,
		SprintField:      cfg.SprintField,
		RecentDays:       cfg.RecentDays,
		BlockerJQL:       cfg.BlockerJQL,
		PageSize:         cfg.PageSize,
	})
}

// ValidateConnection verifies credentials by calling GET /rest/api/2/myself.
// Returns the user's display name on success.
func (a *Adapter) ValidateConnection(ctx context.Context) (string, error) {
	var me User
	if err := a.client.Get(ctx, "/rest/api/2/myself", nil, &me); err != nil {
		return "", fmt.Errorf("validating Jira connection: %w", err)
	}
	return me.DisplayName, nil
}

// ListUsers pages through all user accounts. App and customer accounts
// are dropped.
func (a *Adapter) ListUsers(ctx context.Context) ([]source.RemoteUser, error) {
	path := "/rest/api/2/users/search"
	if !a.cloud {
		path = "/rest/api/2/user/search"
	}

	var users []source.RemoteUser
	for startAt := 0; ; startAt += a.opts.PageSize {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(a.opts.PageSize))
		if !a.cloud {
			q.Set("username", ".")
		}

		var page []User
		if err := a.client.Get(ctx, path, q, &page); err != nil {
			return nil, fmt.Errorf("listing Jira users: %w", err)
		}

		for _, u := range page {
			if u.AccountType != "" && u.AccountType != "atlassian" {
				continue
			}
			users = append(users, source.RemoteUser{
				AccountID:   u.Identity(),
				Email:       u.EmailAddress,
				DisplayName: u.DisplayName,
				Active:      u.Active,
			})
		}

		if len(page) < a.opts.PageSize {
			return users, nil
		}
	}
}

// ListProjects pages through all visible projects.
func (a *Adapter) ListProjects(ctx context.Context) ([]source.RemoteProject, error) {
	var projects []source.RemoteProject
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(a.opts.PageSize))
		q.Set("expand", "description,lead")

		var page ProjectPage
		if err := a.client.Get(ctx, "/rest/api/2/project/search", q, &page); err != nil {
			return nil, fmt.Errorf("listing Jira projects: %w", err)
		}

		for _, p := range page.Values {
			lead := ""
			if p.Lead != nil {
				lead = p.Lead.DisplayName
			}
			projects = append(projects, source.RemoteProject{
				Key:         p.Key,
				Name:        p.Name,
				Description: p.Description,
				LeadName:    lead,
			})
		}

		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 {
			return projects, nil
		}
	}
}

// GetProjectMetrics computes the progress snapshot of a project from JQL
// counts plus a story point sum over the project's issues.
func (a *Adapter) GetProjectMetrics(ctx context.Context, projectKey string) (model.Progress, error) {
	var p model.Progress
	base := projectClause(projectKey)

	counts := []struct {
		jql  string
		dest *int
	}{
		{base, &p.TotalTasks},
		{base + " AND statusCategory = Done", &p.CompletedTasks},
		{base + fmt.Sprintf(" AND updated >= -%dd", a.opts.RecentDays), &p.RecentUpdates},
	}
	if a.opts.BlockerJQL != "" {
		counts = append(counts, struct {
			jql  string
			dest *int
		}{base + " AND (" + a.opts.BlockerJQL + ")", &p.ActiveBlockers})
	}

	for _, c := range counts {
		n, err := a.count(ctx, c.jql)
		if err != nil {
			return model.Progress{}, fmt.Errorf("metrics for %s: %w", projectKey, err)
		}
		*c.dest = n
	}

	if a.opts.StoryPointsField != "" {
		fields := []string{"status", a.opts.StoryPointsField}
		err := a.searchAll(ctx, base, fields, func(issue Issue) error {
			var std IssueFields
			if err := json.Unmarshal(issue.Fields, &std); err != nil {
				logger.Warn("skipping story points of undecodable issue",
					logger.F("project", projectKey), logger.F("issue", issue.Key), logger.F("error", err))
				return nil
			}
			raw := customFields(issue.Fields)
			points := parseNumber(raw[a.opts.StoryPointsField])
			if points == nil {
				return nil
			}
			p.TotalStoryPoints += *points
			if strings.EqualFold(std.Status.StatusCategory.Key, "done") {
				p.CompletedStoryPoints += *points
			}
			return nil
		})
		if err != nil {
			return model.Progress{}, fmt.Errorf("story points for %s: %w", projectKey, err)
		}
	}

	return p, nil
}

// ListBoards pages through all agile boards.
func (a *Adapter) ListBoards(ctx context.Context) ([]source.RemoteBoard, error) {
	var boards []source.RemoteBoard
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(a.opts.PageSize))

		var page BoardPage
		if err := a.client.Get(ctx, "/rest/agile/1.0/board", q, &page); err != nil {
			return nil, fmt.Errorf("listing Jira boards: %w", err)
		}

		for _, b := range page.Values {
			boards = append(boards, source.RemoteBoard{
				ID:         b.ID,
				Name:       b.Name,
				Type:       strings.ToLower(b.Type),
				ProjectKey: b.Location.ProjectKey,
			})
		}

		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 {
			return boards, nil
		}
	}
}

// ListSprintsForBoard pages through the sprints of a scrum board.
func (a *Adapter) ListSprintsForBoard(ctx context.Context, boardID int64) ([]source.RemoteSprint, error) {
	path := fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID)

	var sprints []source.RemoteSprint
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(a.opts.PageSize))

		var page SprintPage
		if err := a.client.Get(ctx, path, q, &page); err != nil {
			return nil, fmt.Errorf("listing sprints of board %d: %w", boardID, err)
		}

		for _, s := range page.Values {
			sprints = append(sprints, source.RemoteSprint{
				ID:            s.ID,
				BoardID:       boardID,
				OriginBoardID: s.OriginBoardID,
				Name:          s.Name,
				State:         strings.ToLower(s.State),
				StartDate:     parseOptionalTime(s.StartDate),
				EndDate:       parseOptionalTime(s.EndDate),
				CompleteDate:  parseOptionalTime(s.CompleteDate),
				Goal:          s.Goal,
			})
		}

		startAt += len(page.Values)
		if page.IsLast || len(page.Values) == 0 {
			return sprints, nil
		}
	}
}

// ListTasksForProject pages through the issues of a project, optionally
// restricted to those updated since q.UpdatedSince.
func (a *Adapter) ListTasksForProject(
	ctx context.Context,
	projectKey string,
	q source.TaskQuery,
) ([]source.RemoteTask, error) {
	jql := projectClause(projectKey)
	if !q.IsComplete() {
		jql += " AND " + updatedWithin(a.opts.Now().Sub(q.UpdatedSince))
	}
	jql += " ORDER BY key ASC"

	var tasks []source.RemoteTask
	err := a.searchAll(ctx, jql, a.taskFields(), func(issue Issue) error {
		tasks = append(tasks, a.issueToTask(projectKey, issue))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing tasks of %s: %w", projectKey, err)
	}
	return tasks, nil
}

// updatedWithin renders a relative JQL bound covering the last age plus
// incrementalOverlap, in whole minutes rounded up. Absolute dates in JQL
// are read in the searching user's time zone; relative ones are not.
func updatedWithin(age time.Duration) string {
	minutes := int64((age + incrementalOverlap + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("updated >= -%dm", minutes)
}

func (a *Adapter) taskFields() []string {
	fields := []string{
		"summary", "description", "status", "priority", "issuetype",
		"parent", "assignee", "project", "created", "updated",
		"duedate", "timeoriginalestimate",
	}
	if a.opts.StoryPointsField != "" {
		fields = append(fields, a.opts.StoryPointsField)
	}
	if a.opts.SprintField != "" {
		fields = append(fields, a.opts.SprintField)
	}
	return fields
}

// count returns the number of issues matching jql without fetching them.
func (a *Adapter) count(ctx context.Context, jql string) (int, error) {
	var resp SearchResponse
	req := SearchRequest{JQL: jql, MaxResults: 0, Fields: []string{"key"}}
	if err := a.client.Post(ctx, "/rest/api/2/search", req, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// searchAll pages through a JQL search and hands each issue to fn.
func (a *Adapter) searchAll(
	ctx context.Context,
	jql string,
	fields []string,
	fn func(Issue) error,
) error {
	for startAt := 0; ; {
		req := SearchRequest{
			JQL:        jql,
			StartAt:    startAt,
			MaxResults: a.opts.PageSize,
			Fields:     fields,
		}

		var resp SearchResponse
		if err := a.client.Post(ctx, "/rest/api/2/search", req, &resp); err != nil {
			return err
		}

		for _, issue := range resp.Issues {
			if err := fn(issue); err != nil {
				return err
			}
		}

		startAt += len(resp.Issues)
		if len(resp.Issues) == 0 || startAt >= resp.Total {
			return nil
		}
	}
}

// issueToTask converts a Jira Issue to a source.RemoteTask. Undecodable
// fields leave the task with only its key so the reconciler can reject
// it while still treating it as present.
func (a *Adapter) issueToTask(projectKey string, issue Issue) source.RemoteTask {
	task := source.RemoteTask{Key: issue.Key, ProjectKey: projectKey}

	var f IssueFields
	if err := json.Unmarshal(issue.Fields, &f); err != nil {
		logger.Warn("undecodable Jira issue fields",
			logger.F("key", issue.Key), logger.F("error", err))
		return task
	}
	raw := customFields(issue.Fields)

	if f.Project.Key != "" {
		task.ProjectKey = f.Project.Key
	}
	task.Title = f.Summary
	task.Description = f.Description
	task.Status = normalizeStatus(f.Status)
	task.IssueType = f.IssueType.Name
	if f.Parent != nil {
		task.ParentKey = f.Parent.Key
	}
	if f.Assignee != nil {
		task.AssigneeAccountID = f.Assignee.Identity()
		task.AssigneeDisplayName = f.Assignee.DisplayName
	}
	task.Priority = normalizePriority(f.Priority)
	task.OriginalEstimateSeconds = f.TimeOriginalEstimate
	task.DueDate = parseOptionalTime(f.DueDate)
	task.CreatedAt = parseJiraTime(f.Created)
	task.UpdatedAt = parseJiraTime(f.Updated)

	if a.opts.StoryPointsField != "" {
		task.StoryPoints = parseNumber(raw[a.opts.StoryPointsField])
	}
	if a.opts.SprintField != "" {
		task.SprintID = currentSprintID(raw[a.opts.SprintField])
	}

	return task
}

// projectClause quotes the key so reserved words are accepted.
func projectClause(projectKey string) string {
	return fmt.Sprintf(`project = "%s"`, escapeJQL(projectKey))
}

// customFields decodes the issue fields into raw values so configurable
// custom field ids can be looked up.
func customFields(fields json.RawMessage) map[string]json.RawMessage {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(fields, &raw); err != nil {
		return nil
	}
	return raw
}

func parseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}

// legacySprintID extracts the id from Server/DC sprint strings such as
// "com.atlassian.greenhopper.service.sprint.Sprint@1a2b[id=42,state=ACTIVE,...]".
var legacySprintID = regexp.MustCompile(`\bid=(\d+)`)
var legacySprintState = regexp.MustCompile(`\bstate=([A-Za-z]+)`)

// currentSprintID picks the sprint a task currently belongs to: the
// active one, else the first future one, else the most recent.
func currentSprintID(raw json.RawMessage) int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}

	var sprints []Sprint
	if err := json.Unmarshal(raw, &sprints); err != nil {
		var legacy []string
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return 0
		}
		for _, s := range legacy {
			m := legacySprintID.FindStringSubmatch(s)
			if m == nil {
				continue
			}
			id, _ := strconv.ParseInt(m[1], 10, 64)
			state := ""
			if sm := legacySprintState.FindStringSubmatch(s); sm != nil {
				state = sm[1]
			}
			sprints = append(sprints, Sprint{ID: id, State: state})
		}
	}
	if len(sprints) == 0 {
		return 0
	}

	for _, s := range sprints {
		if strings.EqualFold(s.State, model.SprintActive) {
			return s.ID
		}
	}
	for _, s := range sprints {
		if strings.EqualFold(s.State, model.SprintFuture) {
			return s.ID
		}
	}
	return sprints[len(sprints)-1].ID
}

// normalizeStatus maps a Jira status to a normalized status. Status names
// are checked first for the states Jira has no category for, then the
// status category decides.
func normalizeStatus(status Status) model.TaskStatus {
	name := strings.ToLower(status.Name)
	switch {
	case strings.Contains(name, "block"):
		return model.StatusBlocked
	case strings.Contains(name, "hold"):
		return model.StatusOnHold
	case strings.Contains(name, "cancel"),
		strings.Contains(name, "won't"),
		strings.Contains(name, "wont"),
		strings.Contains(name, "reject"):
		return model.StatusCancelled
	}

	switch strings.ToLower(status.StatusCategory.Key) {
	case "new":
		return model.StatusToDo
	case "indeterminate":
		return model.StatusInProgress
	case "done":
		return model.StatusDone
	default:
		return model.StatusToDo
	}
}

// normalizePriority maps a Jira priority onto the 1-5 scale. Default
// Jira priority ids run 1 (Highest) to 5 (Lowest); custom schemes fall
// back to the name.
func normalizePriority(priority *Priority) int {
	if priority == nil {
		return model.PriorityMedium
	}

	if id, err := strconv.Atoi(priority.ID); err == nil && id >= 1 && id <= 5 {
		return id
	}

	switch strings.ToLower(priority.Name) {
	case "highest", "blocker", "critical":
		return model.PriorityCritical
	case "high", "major":
		return model.PriorityHigh
	case "low", "minor":
		return model.PriorityLow
	case "lowest", "trivial":
		return model.PriorityLowest
	default:
		return model.PriorityMedium
	}
}

// parseJiraTime parses a Jira timestamp string. Jira uses the format
// "2006-01-02T15:04:05.000+0000".
func parseJiraTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	layouts := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05-0700",
		time.RFC3339,
		"2006-01-02",
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

func parseOptionalTime(s string) *time.Time {
	t := parseJiraTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// escapeJQL escapes special characters in a JQL string literal.
func escapeJQL(s string) string {
	// Escape backslashes first, then double-quotes.
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
