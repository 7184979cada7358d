package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/primowaterSFMC/sqrly/internal/breakdown"
	"github.com/primowaterSFMC/sqrly/internal/calendar"
	"github.com/primowaterSFMC/sqrly/internal/config"
	"github.com/primowaterSFMC/sqrly/internal/db"
	"github.com/primowaterSFMC/sqrly/internal/planner"
	"github.com/primowaterSFMC/sqrly/internal/session"
	"github.com/primowaterSFMC/sqrly/pkg/models"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	cfg := config.Default()
	// Nil provider: every breakdown takes the deterministic fallback.
	orch := breakdown.New(nil, cfg.Breakdown, cfg.AI, nil)

	return &Deps{
		DB:         database,
		Config:     cfg,
		Classifier: planner.NewClassifier(cfg.Quadrant.Threshold),
		Matcher:    planner.NewMatcher(cfg.Energy.Tolerance),
		Detector:   planner.NewDetector(cfg.Overwhelm),
		Breakdown:  orch,
		Sessions:   session.NewManager(orch, database, cfg.Session, nil),
		Calendar:   calendar.Fixed{Hours: cfg.Calendar.WorkdayHours},
	}
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()

	tool := s.GetTool(name)
	if tool == nil {
		t.Fatalf("Tool %s not found", name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := tool.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("Handler %s failed: %v", name, err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("Result has no content")
	}
	return result.Content[0].(mcp.TextContent).Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult, v interface{}) {
	t.Helper()
	if result.IsError {
		t.Fatalf("Tool returned error: %v", result.Content[0])
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), v); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
}

func TestServerInitialization(t *testing.T) {
	d := newTestDeps(t)
	s := NewServer(d)
	stdio := server.NewStdioServer(s)

	r, w := io.Pipe()
	stdout := &bytes.Buffer{}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- stdio.Listen(ctx, r, stdout)
	}()

	initReq := mcp.InitializeRequest{}
	initReq.Method = "initialize"
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}

	rawReq := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params":  initReq.Params,
	}

	data, err := json.Marshal(rawReq)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	w.Write(data)
	w.Write([]byte("\n"))

	// Give it a moment to process
	time.Sleep(200 * time.Millisecond)

	if stdout.Len() == 0 {
		t.Fatal("Expected response from server, got none")
	}

	var resp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int    `json:"id"`
		Result  struct {
			ProtocolVersion string `json:"protocolVersion"`
			ServerInfo      struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			} `json:"serverInfo"`
		} `json:"result"`
	}

	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v\nOutput: %s", err, stdout.String())
	}

	if resp.ID != 1 {
		t.Errorf("Expected id 1, got %v", resp.ID)
	}

	if resp.Result.ServerInfo.Name != "Sqrly" {
		t.Errorf("Expected server name Sqrly, got %v", resp.Result.ServerInfo.Name)
	}
}

func TestToolHandlers(t *testing.T) {
	d := newTestDeps(t)
	s := NewServer(d)
	ctx := context.Background()

	t.Run("classify_task", func(t *testing.T) {
		result := callTool(t, s, "classify_task", map[string]interface{}{
			"importance": 8.0,
			"urgency":    8.0,
		})

		var resp struct {
			Quadrant int    `json:"quadrant"`
			Name     string `json:"name"`
		}
		decodeResult(t, result, &resp)

		if resp.Quadrant != 1 {
			t.Errorf("Expected quadrant 1, got %d", resp.Quadrant)
		}
		if resp.Name != "urgent-important" {
			t.Errorf("Expected name urgent-important, got %s", resp.Name)
		}
	})

	t.Run("classify_task_out_of_range", func(t *testing.T) {
		result := callTool(t, s, "classify_task", map[string]interface{}{
			"importance": 11.0,
			"urgency":    5.0,
		})
		if !result.IsError {
			t.Error("Expected error for importance 11, got success")
		}
	})

	var taskID string
	t.Run("create_task", func(t *testing.T) {
		result := callTool(t, s, "create_task", map[string]interface{}{
			"user_id":           "u1",
			"title":             "Write the report",
			"description":       "Quarterly numbers",
			"importance":        9.0,
			"urgency":           4.0,
			"required_energy":   7.0,
			"estimated_minutes": 90.0,
		})

		var resp struct {
			Task models.Task `json:"task"`
		}
		decodeResult(t, result, &resp)

		if resp.Task.ID == "" {
			t.Fatal("Expected created task to carry an ID")
		}
		if resp.Task.Quadrant != 2 {
			t.Errorf("Expected quadrant 2 (important, not urgent), got %d", resp.Task.Quadrant)
		}
		taskID = resp.Task.ID
	})

	t.Run("update_task_recomputes_quadrant", func(t *testing.T) {
		result := callTool(t, s, "update_task", map[string]interface{}{
			"task_id": taskID,
			"urgency": 9.0,
		})

		var resp struct {
			Task models.Task `json:"task"`
		}
		decodeResult(t, result, &resp)

		if resp.Task.Urgency != 9 {
			t.Errorf("Expected urgency 9, got %d", resp.Task.Urgency)
		}
		if resp.Task.Quadrant != 1 {
			t.Errorf("Expected quadrant to move to 1, got %d", resp.Task.Quadrant)
		}
	})

	t.Run("start_task_energy_gate", func(t *testing.T) {
		// Task needs energy 7; current energy 3 is refused
		result := callTool(t, s, "start_task", map[string]interface{}{
			"task_id":        taskID,
			"current_energy": 3.0,
		})
		if !result.IsError {
			t.Fatal("Expected refusal at energy 3")
		}

		fetched, _ := d.DB.GetTask(ctx, taskID)
		if fetched.Status != models.TaskStatusPending {
			t.Errorf("Expected task untouched after refusal, got %s", fetched.Status)
		}

		result = callTool(t, s, "start_task", map[string]interface{}{
			"task_id":        taskID,
			"current_energy": 8.0,
		})
		if result.IsError {
			t.Fatalf("Expected start at energy 8, got %v", result.Content[0])
		}

		fetched, _ = d.DB.GetTask(ctx, taskID)
		if fetched.Status != models.TaskStatusInProgress {
			t.Errorf("Expected status in_progress, got %s", fetched.Status)
		}
	})

	t.Run("complete_task", func(t *testing.T) {
		result := callTool(t, s, "complete_task", map[string]interface{}{
			"task_id":        taskID,
			"actual_minutes": 75.0,
		})
		if result.IsError {
			t.Fatalf("Tool returned error: %v", result.Content[0])
		}

		fetched, _ := d.DB.GetTask(ctx, taskID)
		if fetched.Status != models.TaskStatusCompleted {
			t.Errorf("Expected status completed, got %s", fetched.Status)
		}
		if fetched.ActualMinutes == nil || *fetched.ActualMinutes != 75 {
			t.Errorf("Expected actual minutes 75")
		}
	})

	t.Run("suggest_tasks", func(t *testing.T) {
		callTool(t, s, "create_task", map[string]interface{}{
			"user_id":         "u2",
			"title":           "Deep focus work",
			"importance":      8.0,
			"urgency":         8.0,
			"required_energy": 9.0,
		})
		callTool(t, s, "create_task", map[string]interface{}{
			"user_id":         "u2",
			"title":           "Tidy the inbox",
			"importance":      3.0,
			"urgency":         3.0,
			"required_energy": 2.0,
		})

		result := callTool(t, s, "suggest_tasks", map[string]interface{}{
			"user_id":        "u2",
			"current_energy": 4.0,
		})

		var resp struct {
			Tasks []models.Task `json:"tasks"`
		}
		decodeResult(t, result, &resp)

		if len(resp.Tasks) != 1 {
			t.Fatalf("Expected 1 eligible task at energy 4, got %d", len(resp.Tasks))
		}
		if resp.Tasks[0].Title != "Tidy the inbox" {
			t.Errorf("Expected the low-energy task, got %s", resp.Tasks[0].Title)
		}
	})

	t.Run("assess_overwhelm", func(t *testing.T) {
		result := callTool(t, s, "assess_overwhelm", map[string]interface{}{
			"user_id":         "u2",
			"energy_level":    7.0,
			"stress_level":    2.0,
			"available_hours": 8.0,
		})

		var resp planner.Assessment
		decodeResult(t, result, &resp)

		if resp.Risk != planner.RiskLow {
			t.Errorf("Expected low risk for 2 tasks over 8 hours, got %s (score %.2f)", resp.Risk, resp.Score)
		}
	})

	t.Run("create_task_overwhelm_warning", func(t *testing.T) {
		// Pile on overdue work so the next create trips the warning
		past := time.Now().Add(-48 * time.Hour).Format(time.RFC3339)
		for i := 0; i < 9; i++ {
			callTool(t, s, "create_task", map[string]interface{}{
				"user_id":    "u3",
				"title":      "Slipped task",
				"importance": 7.0,
				"urgency":    7.0,
				"due_date":   past,
			})
		}

		result := callTool(t, s, "create_task", map[string]interface{}{
			"user_id":        "u3",
			"title":          "One more thing",
			"importance":     7.0,
			"urgency":        7.0,
			"current_energy": 2.0,
			"stress_level":   9.0,
		})

		var resp struct {
			Task             models.Task         `json:"task"`
			OverwhelmWarning *planner.Assessment `json:"overwhelm_warning"`
		}
		decodeResult(t, result, &resp)

		// Never rejected, only warned
		if resp.Task.ID == "" {
			t.Fatal("Expected the task to be created despite the overload")
		}
		if resp.OverwhelmWarning == nil {
			t.Fatal("Expected an overwhelm warning on a crowded day")
		}
		if resp.OverwhelmWarning.Risk != planner.RiskHigh {
			t.Errorf("Expected high risk, got %s (score %.2f)", resp.OverwhelmWarning.Risk, resp.OverwhelmWarning.Score)
		}
	})

	t.Run("breakdown_stage_and_apply", func(t *testing.T) {
		var created struct {
			Task models.Task `json:"task"`
		}
		decodeResult(t, callTool(t, s, "create_task", map[string]interface{}{
			"user_id":           "u4",
			"title":             "Clean the garage",
			"description":       "Full weekend clean-out",
			"importance":        5.0,
			"urgency":           5.0,
			"estimated_minutes": 100.0,
		}), &created)

		result := callTool(t, s, "request_breakdown", map[string]interface{}{
			"task_id":           created.Task.ID,
			"available_minutes": 120.0,
			"session_id":        "plan-1",
		})

		var resp struct {
			Breakdown breakdown.Result `json:"breakdown"`
			Staged    string           `json:"staged"`
		}
		decodeResult(t, result, &resp)

		// 100 estimated minutes in 20-minute chunks
		if len(resp.Breakdown.Subtasks) != 5 {
			t.Errorf("Expected 5 fallback subtasks, got %d", len(resp.Breakdown.Subtasks))
		}
		if resp.Breakdown.Strategy != breakdown.StrategyFallback {
			t.Errorf("Expected fallback strategy without a provider, got %s", resp.Breakdown.Strategy)
		}
		if resp.Staged != "plan-1" {
			t.Errorf("Expected staging under plan-1, got %q", resp.Staged)
		}

		// Nothing persisted until apply
		subtasks, _ := d.DB.ListSubtasks(ctx, created.Task.ID)
		if len(subtasks) != 0 {
			t.Fatalf("Expected no persisted subtasks before apply, got %d", len(subtasks))
		}

		applied := callTool(t, s, "apply_breakdown", map[string]interface{}{"session_id": "plan-1"})
		if applied.IsError {
			t.Fatalf("apply_breakdown failed: %v", applied.Content[0])
		}

		var listed struct {
			Subtasks []models.Subtask `json:"subtasks"`
		}
		decodeResult(t, callTool(t, s, "list_subtasks", map[string]interface{}{
			"task_id": created.Task.ID,
		}), &listed)
		if len(listed.Subtasks) != 5 {
			t.Fatalf("Expected 5 persisted subtasks, got %d", len(listed.Subtasks))
		}

		// Subtask lifecycle through the tools
		first := listed.Subtasks[0].ID
		if r := callTool(t, s, "start_subtask", map[string]interface{}{"subtask_id": first}); r.IsError {
			t.Fatalf("start_subtask failed: %v", r.Content[0])
		}
		if r := callTool(t, s, "complete_subtask", map[string]interface{}{"subtask_id": first}); r.IsError {
			t.Fatalf("complete_subtask failed: %v", r.Content[0])
		}

		// Applying twice fails, the proposal was consumed
		if r := callTool(t, s, "apply_breakdown", map[string]interface{}{"session_id": "plan-1"}); !r.IsError {
			t.Error("Expected error applying a consumed proposal")
		}
	})

	t.Run("request_breakdown_ad_hoc", func(t *testing.T) {
		result := callTool(t, s, "request_breakdown", map[string]interface{}{
			"title":             "Pack for the trip",
			"description":       "Weekend trip, one bag",
			"available_minutes": 30.0,
		})

		var resp struct {
			Breakdown breakdown.Result `json:"breakdown"`
			Staged    string           `json:"staged"`
		}
		decodeResult(t, result, &resp)

		if len(resp.Breakdown.Subtasks) == 0 {
			t.Fatal("Expected subtasks for an ad-hoc breakdown")
		}
		if resp.Staged != "" {
			t.Errorf("Expected nothing staged without a task_id, got %q", resp.Staged)
		}
	})

	t.Run("session_flow", func(t *testing.T) {
		var state session.State
		decodeResult(t, callTool(t, s, "start_session", map[string]interface{}{
			"user_id": "u5",
		}), &state)
		if state.Stage != models.SessionStarted {
			t.Fatalf("Expected stage started, got %s", state.Stage)
		}

		// A vague opener earns a clarifying question
		decodeResult(t, callTool(t, s, "advance_session", map[string]interface{}{
			"session_id": state.ID,
			"content":    "taxes ugh",
		}), &state)
		if state.Stage != models.SessionClarifying {
			t.Errorf("Expected stage clarifying, got %s", state.Stage)
		}
		if state.Completion != 0.2 {
			t.Errorf("Expected completion 0.2, got %.2f", state.Completion)
		}

		// An effort hint unlocks a proposal
		decodeResult(t, callTool(t, s, "advance_session", map[string]interface{}{
			"session_id":     state.ID,
			"content":        "gather receipts and file the return",
			"effort_minutes": 90.0,
		}), &state)
		if state.Stage != models.SessionProposing {
			t.Fatalf("Expected stage proposing, got %s", state.Stage)
		}
		if state.Breakdown == nil || len(state.Breakdown.Subtasks) == 0 {
			t.Fatal("Expected a proposal in the proposing state")
		}

		decodeResult(t, callTool(t, s, "advance_session", map[string]interface{}{
			"session_id": state.ID,
			"confirm":    true,
		}), &state)
		if state.Stage != models.SessionConfirmed {
			t.Errorf("Expected stage confirmed, got %s", state.Stage)
		}

		decodeResult(t, callTool(t, s, "close_session", map[string]interface{}{
			"session_id": state.ID,
		}), &state)
		if state.Stage != models.SessionClosed {
			t.Errorf("Expected stage closed, got %s", state.Stage)
		}

		// Archived with the full turn log
		archived, err := d.DB.GetSession(ctx, state.ID)
		if err != nil || archived == nil {
			t.Fatalf("Expected archived session, got %v, %v", archived, err)
		}
		if len(archived.Turns) == 0 {
			t.Error("Expected archived turns")
		}
	})

	t.Run("goals_and_milestones", func(t *testing.T) {
		var created struct {
			Goal models.Goal `json:"goal"`
		}
		decodeResult(t, callTool(t, s, "create_goal", map[string]interface{}{
			"user_id":  "u6",
			"title":    "Launch the side project",
			"priority": 8.0,
		}), &created)
		if created.Goal.ID == "" {
			t.Fatal("Expected goal ID")
		}

		var m1, m2 struct {
			Milestone models.Milestone `json:"milestone"`
		}
		decodeResult(t, callTool(t, s, "add_milestone", map[string]interface{}{
			"goal_id":        created.Goal.ID,
			"title":          "Working prototype",
			"sequence_order": 1.0,
		}), &m1)
		decodeResult(t, callTool(t, s, "add_milestone", map[string]interface{}{
			"goal_id":        created.Goal.ID,
			"title":          "First user",
			"sequence_order": 2.0,
		}), &m2)

		if r := callTool(t, s, "complete_milestone", map[string]interface{}{
			"milestone_id": m1.Milestone.ID,
		}); r.IsError {
			t.Fatalf("complete_milestone failed: %v", r.Content[0])
		}

		var listed struct {
			Goals []models.Goal `json:"goals"`
		}
		decodeResult(t, callTool(t, s, "list_goals", map[string]interface{}{
			"user_id": "u6",
		}), &listed)
		if len(listed.Goals) != 1 {
			t.Fatalf("Expected 1 goal, got %d", len(listed.Goals))
		}
		if listed.Goals[0].Progress != 0.5 {
			t.Errorf("Expected progress 0.5 after one of two milestones, got %.2f", listed.Goals[0].Progress)
		}
	})

	t.Run("error_handling", func(t *testing.T) {
		if r := callTool(t, s, "start_task", map[string]interface{}{
			"task_id":        "does-not-exist",
			"current_energy": 5.0,
		}); !r.IsError {
			t.Error("Expected error for missing task")
		}

		if r := callTool(t, s, "delete_task", map[string]interface{}{
			"task_id": "does-not-exist",
		}); !r.IsError {
			t.Error("Expected error deleting a missing task")
		}

		if r := callTool(t, s, "advance_session", map[string]interface{}{
			"session_id": "does-not-exist",
			"content":    "hello",
		}); !r.IsError {
			t.Error("Expected error for unknown session")
		}

		if r := callTool(t, s, "create_task", map[string]interface{}{
			"user_id":    "u7",
			"importance": 5.0,
			"urgency":    5.0,
		}); !r.IsError {
			t.Error("Expected error for a task without a title")
		}
	})
}
