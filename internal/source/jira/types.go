package jira

import "encoding/json"

// SearchRequest is the body of POST /rest/api/2/search.
type SearchRequest struct {
	JQL        string   `json:"jql"`
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields,omitempty"`
}

// SearchResponse is the response from POST /rest/api/2/search.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// Issue represents a single Jira issue from the REST API. Fields is kept
// raw because custom field ids (story points, sprint) are configurable.
type Issue struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Fields json.RawMessage `json:"fields"`
}

// IssueFields contains the standard fields of a Jira issue.
type IssueFields struct {
	Summary              string       `json:"summary"`
	Description          string       `json:"description"`
	Status               Status       `json:"status"`
	Priority             *Priority    `json:"priority"`
	IssueType            IssueType    `json:"issuetype"`
	Parent               *ParentIssue `json:"parent"`
	Assignee             *User        `json:"assignee"`
	Project              Project      `json:"project"`
	Created              string       `json:"created"`
	Updated              string       `json:"updated"`
	DueDate              string       `json:"duedate"`
	TimeOriginalEstimate *int64       `json:"timeoriginalestimate"`
}

// ParentIssue is the reduced parent (epic or parent task) reference.
type ParentIssue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Status represents the status of a Jira issue.
type Status struct {
	Name           string         `json:"name"`
	ID             string         `json:"id"`
	StatusCategory StatusCategory `json:"statusCategory"`
}

// StatusCategory is the broad category a status belongs to.
type StatusCategory struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Priority represents the priority level of a Jira issue.
type Priority struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// IssueType represents the type of a Jira issue (Bug, Story, etc.).
type IssueType struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// User represents a Jira user. Cloud identifies users by AccountID;
// Server/DC by Key/Name.
type User struct {
	AccountID    string `json:"accountId"`
	AccountType  string `json:"accountType"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	Active       bool   `json:"active"`
}

// Identity returns the stable account identifier of the user.
func (u User) Identity() string {
	switch {
	case u.AccountID != "":
		return u.AccountID
	case u.Key != "":
		return u.Key
	default:
		return u.Name
	}
}

// Project represents a Jira project.
type Project struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Lead        *User  `json:"lead"`
}

// ProjectPage is the response from GET /rest/api/2/project/search.
type ProjectPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	IsLast     bool      `json:"isLast"`
	Values     []Project `json:"values"`
}

// Board represents an agile board.
type Board struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Location BoardLocation `json:"location"`
}

// BoardLocation is the container a board belongs to.
type BoardLocation struct {
	ProjectID  int64  `json:"projectId"`
	ProjectKey string `json:"projectKey"`
}

// BoardPage is the response from GET /rest/agile/1.0/board.
type BoardPage struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	IsLast     bool    `json:"isLast"`
	Values     []Board `json:"values"`
}

// Sprint represents an agile sprint, both as listed by the board API and
// as embedded in the sprint custom field on Cloud.
type Sprint struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	CompleteDate  string `json:"completeDate"`
	OriginBoardID int64  `json:"originBoardId"`
	BoardID       int64  `json:"boardId"`
	Goal          string `json:"goal"`
}

// SprintPage is the response from GET /rest/agile/1.0/board/{id}/sprint.
type SprintPage struct {
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	IsLast     bool     `json:"isLast"`
	Values     []Sprint `json:"values"`
}

// ErrorResponse is the standard Jira error response format.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}
