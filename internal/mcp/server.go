package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/primowaterSFMC/sqrly/internal/breakdown"
	"github.com/primowaterSFMC/sqrly/internal/calendar"
	"github.com/primowaterSFMC/sqrly/internal/config"
	"github.com/primowaterSFMC/sqrly/internal/db"
	"github.com/primowaterSFMC/sqrly/internal/planner"
	"github.com/primowaterSFMC/sqrly/internal/session"
	"github.com/primowaterSFMC/sqrly/pkg/models"
)

// Deps bundles everything the tool handlers need.
type Deps struct {
	DB         *db.DB
	Config     *config.Config
	Classifier *planner.Classifier
	Matcher    *planner.Matcher
	Detector   *planner.Detector
	Breakdown  *breakdown.Orchestrator
	Sessions   *session.Manager
	Calendar   calendar.Source
	Logger     *zap.Logger
}

// NewServer creates a new MCP server.
func NewServer(d *Deps) *server.MCPServer {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	s := server.NewMCPServer("Sqrly", "0.1.0")

	// Classification
	s.AddTool(mcp.NewTool("classify_task",
		mcp.WithDescription("Classify importance and urgency scores into an Eisenhower quadrant without touching any task."),
		mcp.WithNumber("importance", mcp.Description("Importance score (1-10)"), mcp.Required()),
		mcp.WithNumber("urgency", mcp.Description("Urgency score (1-10)"), mcp.Required()),
	), classifyTaskHandler(d))

	// Task Management
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a task. The quadrant is computed from importance and urgency. The response may carry an overwhelm warning; the task is created either way."),
		mcp.WithString("user_id", mcp.Description("Owner of the task"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Task title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
		mcp.WithNumber("importance", mcp.Description("Importance score (1-10)"), mcp.Required()),
		mcp.WithNumber("urgency", mcp.Description("Urgency score (1-10)"), mcp.Required()),
		mcp.WithNumber("required_energy", mcp.Description("Energy the task needs (1-10, default 5)")),
		mcp.WithNumber("estimated_minutes", mcp.Description("Estimated effort in minutes")),
		mcp.WithString("goal_id", mcp.Description("Goal to link the task to")),
		mcp.WithString("due_date", mcp.Description("Due date, RFC3339")),
		mcp.WithNumber("current_energy", mcp.Description("Current energy for the overwhelm check (1-10, default 5)")),
		mcp.WithNumber("stress_level", mcp.Description("Current stress for the overwhelm check (1-10, default 5)")),
	), createTaskHandler(d))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update a task. Changing importance or urgency recomputes the quadrant."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithNumber("importance", mcp.Description("New importance (1-10)")),
		mcp.WithNumber("urgency", mcp.Description("New urgency (1-10)")),
		mcp.WithNumber("required_energy", mcp.Description("New required energy (1-10)")),
		mcp.WithNumber("estimated_minutes", mcp.Description("New estimate in minutes")),
		mcp.WithString("goal_id", mcp.Description("New goal link; empty string unlinks")),
		mcp.WithString("due_date", mcp.Description("New due date, RFC3339; empty string clears")),
	), updateTaskHandler(d))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List a user's tasks, optionally filtered by status."),
		mcp.WithString("user_id", mcp.Description("Owner"), mcp.Required()),
		mcp.WithString("status", mcp.Description("Filter (pending|in_progress|completed|skipped)")),
	), listTasksHandler(d))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task and its subtasks."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), deleteTaskHandler(d))

	s.AddTool(mcp.NewTool("start_task",
		mcp.WithDescription("Start a task. Refused when the task needs more energy than the user currently has."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithNumber("current_energy", mcp.Description("Current energy (1-10)"), mcp.Required()),
	), startTaskHandler(d))

	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Complete a task, optionally recording the actual minutes spent."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
		mcp.WithNumber("actual_minutes", mcp.Description("Actual minutes spent")),
	), completeTaskHandler(d))

	// Planning
	s.AddTool(mcp.NewTool("suggest_tasks",
		mcp.WithDescription("Suggest which active tasks fit the user's current energy, best first."),
		mcp.WithString("user_id", mcp.Description("Owner"), mcp.Required()),
		mcp.WithNumber("current_energy", mcp.Description("Current energy (1-10)"), mcp.Required()),
	), suggestTasksHandler(d))

	s.AddTool(mcp.NewTool("assess_overwhelm",
		mcp.WithDescription("Assess overwhelm risk from the stored workload plus the user's energy and stress. Available hours come from the calendar unless given explicitly."),
		mcp.WithString("user_id", mcp.Description("Owner"), mcp.Required()),
		mcp.WithNumber("energy_level", mcp.Description("Current energy (1-10)"), mcp.Required()),
		mcp.WithNumber("stress_level", mcp.Description("Current stress (1-10)"), mcp.Required()),
		mcp.WithNumber("available_hours", mcp.Description("Hours free today; overrides the calendar")),
	), assessOverwhelmHandler(d))

	// Breakdown
	s.AddTool(mcp.NewTool("request_breakdown",
		mcp.WithDescription("Break a task into small subtasks. With a task_id the result is staged; call 'apply_breakdown' to persist it."),
		mcp.WithString("task_id", mcp.Description("Task to break down; title and description are read from it")),
		mcp.WithString("title", mcp.Description("Task title (required without task_id)")),
		mcp.WithString("description", mcp.Description("Task description (required without task_id)")),
		mcp.WithNumber("user_energy", mcp.Description("Current energy (1-10, default 5)")),
		mcp.WithNumber("available_minutes", mcp.Description("Time available for the work (default 60)")),
		mcp.WithString("style", mcp.Description("Breakdown style hint, free text")),
		mcp.WithString("session_id", mcp.Description("Staging key (defaults to 'default')")),
	), requestBreakdownHandler(d))

	s.AddTool(mcp.NewTool("apply_breakdown",
		mcp.WithDescription("Persist the staged breakdown for a session, replacing the task's existing subtasks."),
		mcp.WithString("session_id", mcp.Description("Staging key (defaults to 'default')")),
	), applyBreakdownHandler(d))

	// Collaboration Sessions
	s.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a collaborative breakdown session."),
		mcp.WithString("user_id", mcp.Description("Owner"), mcp.Required()),
	), startSessionHandler(d))

	s.AddTool(mcp.NewTool("advance_session",
		mcp.WithDescription("Send one turn to a session. Set confirm to accept the current proposal."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
		mcp.WithString("content", mcp.Description("The user's message")),
		mcp.WithBoolean("confirm", mcp.Description("Accept the current proposal")),
		mcp.WithString("deadline", mcp.Description("Deadline hint, RFC3339")),
		mcp.WithNumber("effort_minutes", mcp.Description("Effort hint in minutes")),
	), advanceSessionHandler(d))

	s.AddTool(mcp.NewTool("close_session",
		mcp.WithDescription("Close a session and archive its record."),
		mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
	), closeSessionHandler(d))

	// Goal Management
	s.AddTool(mcp.NewTool("create_goal",
		mcp.WithDescription("Create a goal. Progress is derived from its milestones."),
		mcp.WithString("user_id", mcp.Description("Owner"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Goal title"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Goal description")),
		mcp.WithNumber("priority", mcp.Description("Priority (1-10, default 5)")),
		mcp.WithString("target_date", mcp.Description("Target date, RFC3339")),
	), createGoalHandler(d))

	s.AddTool(mcp.NewTool("list_goals",
		mcp.WithDescription("List a user's goals with derived progress."),
		mcp.WithString("user_id", mcp.Description("Owner"), mcp.Required()),
	), listGoalsHandler(d))

	s.AddTool(mcp.NewTool("add_milestone",
		mcp.WithDescription("Add a milestone to a goal."),
		mcp.WithString("goal_id", mcp.Description("Goal ID"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Milestone title"), mcp.Required()),
		mcp.WithNumber("sequence_order", mcp.Description("Position in the goal")),
		mcp.WithString("due_date", mcp.Description("Due date, RFC3339")),
	), addMilestoneHandler(d))

	s.AddTool(mcp.NewTool("complete_milestone",
		mcp.WithDescription("Mark a milestone complete (or incomplete) and recompute the goal's progress."),
		mcp.WithString("milestone_id", mcp.Description("Milestone ID"), mcp.Required()),
		mcp.WithBoolean("completed", mcp.Description("Completion state (default true)")),
	), completeMilestoneHandler(d))

	// Subtasks
	s.AddTool(mcp.NewTool("list_subtasks",
		mcp.WithDescription("List a task's subtasks in order, with their dependencies."),
		mcp.WithString("task_id", mcp.Description("Task ID"), mcp.Required()),
	), listSubtasksHandler(d))

	s.AddTool(mcp.NewTool("start_subtask",
		mcp.WithDescription("Start a subtask. Refused while any of its dependencies is unfinished."),
		mcp.WithString("subtask_id", mcp.Description("Subtask ID"), mcp.Required()),
	), startSubtaskHandler(d))

	s.AddTool(mcp.NewTool("complete_subtask",
		mcp.WithDescription("Complete a subtask."),
		mcp.WithString("subtask_id", mcp.Description("Subtask ID"), mcp.Required()),
	), completeSubtaskHandler(d))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func classifyTaskHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		importance := mcp.ParseInt(request, "importance", 0)
		urgency := mcp.ParseInt(request, "urgency", 0)

		quadrant, err := d.Classifier.Classify(importance, urgency)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]interface{}{
			"quadrant": quadrant,
			"name":     models.QuadrantName(quadrant),
		})
	}
}

func createTaskHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := mcp.ParseString(request, "user_id", "")
		importance := mcp.ParseInt(request, "importance", 0)
		urgency := mcp.ParseInt(request, "urgency", 0)

		quadrant, err := d.Classifier.Classify(importance, urgency)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		t := &models.Task{
			UserID:           userID,
			Title:            mcp.ParseString(request, "title", ""),
			Description:      mcp.ParseString(request, "description", ""),
			Importance:       importance,
			Urgency:          urgency,
			Quadrant:         quadrant,
			RequiredEnergy:   mcp.ParseInt(request, "required_energy", 5),
			EstimatedMinutes: mcp.ParseInt(request, "estimated_minutes", 0),
			Status:           models.TaskStatusPending,
		}
		if t.Title == "" {
			return mcp.NewToolResultError("title must not be empty"), nil
		}

		if goalID := mcp.ParseString(request, "goal_id", ""); goalID != "" {
			t.GoalID = &goalID
		}
		if due, err := parseDate(request, "due_date"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		} else if due != nil {
			t.DueDate = due
		}

		if err := d.DB.CreateTask(ctx, t); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		// A crowded day never blocks the create, it only earns a warning.
		out := map[string]interface{}{"task": t}
		energy := mcp.ParseInt(request, "current_energy", 5)
		stress := mcp.ParseInt(request, "stress_level", 5)
		if assessment := d.assess(ctx, userID, energy, stress, 0); assessment != nil {
			if assessment.Risk == planner.RiskMedium || assessment.Risk == planner.RiskHigh {
				out["overwhelm_warning"] = assessment
			}
		}

		return jsonResult(out)
	}
}

func updateTaskHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")

		t, err := d.DB.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}

		args, _ := request.Params.Arguments.(map[string]any)
		if title, ok := args["title"].(string); ok {
			t.Title = title
		}
		if description, ok := args["description"].(string); ok {
			t.Description = description
		}
		if importance, ok := args["importance"].(float64); ok {
			t.Importance = int(importance)
		}
		if urgency, ok := args["urgency"].(float64); ok {
			t.Urgency = int(urgency)
		}
		if energy, ok := args["required_energy"].(float64); ok {
			t.RequiredEnergy = int(energy)
		}
		if minutes, ok := args["estimated_minutes"].(float64); ok {
			t.EstimatedMinutes = int(minutes)
		}
		if goalID, ok := args["goal_id"].(string); ok {
			if goalID == "" {
				t.GoalID = nil
			} else {
				t.GoalID = &goalID
			}
		}
		if dueStr, ok := args["due_date"].(string); ok {
			if dueStr == "" {
				t.DueDate = nil
			} else {
				due, err := time.Parse(time.RFC3339, dueStr)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("invalid due_date: %v", err)), nil
				}
				t.DueDate = &due
			}
		}

		// The quadrant always tracks the scores; it is never set directly.
		quadrant, err := d.Classifier.Classify(t.Importance, t.Urgency)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		t.Quadrant = quadrant

		if err := d.DB.UpdateTask(ctx, t); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]interface{}{"task": t})
	}
}

func listTasksHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := mcp.ParseString(request, "user_id", "")

		var status *models.TaskStatus
		if s := mcp.ParseString(request, "status", ""); s != "" {
			ts := models.TaskStatus(s)
			status = &ts
		}

		tasks, err := d.DB.ListTasks(ctx, userID, status)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]interface{}{"tasks": tasks})
	}
}

func deleteTaskHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")

		if err := d.DB.DeleteTask(ctx, taskID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task deleted successfully"), nil
	}
}

func startTaskHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")
		currentEnergy := mcp.ParseInt(request, "current_energy", 0)

		t, err := d.DB.GetTask(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID)), nil
		}

		ok, err := d.Matcher.CheckEligible(t.RequiredEnergy, currentEnergy)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf(
				"task '%s' needs energy %d but current energy is %d; try 'suggest_tasks' for a better fit",
				t.Title, t.RequiredEnergy, currentEnergy)), nil
		}

		if err := d.DB.UpdateTaskStatus(ctx, taskID, models.TaskStatusInProgress, nil); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task started successfully"), nil
	}
}

func completeTaskHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")

		var actualMinutes *int
		args, _ := request.Params.Arguments.(map[string]any)
		if v, ok := args["actual_minutes"].(float64); ok {
			minutes := int(v)
			actualMinutes = &minutes
		}

		if err := d.DB.UpdateTaskStatus(ctx, taskID, models.TaskStatusCompleted, actualMinutes); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Task completed successfully"), nil
	}
}

func suggestTasksHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := mcp.ParseString(request, "user_id", "")
		currentEnergy := mcp.ParseInt(request, "current_energy", 0)

		tasks, err := d.DB.ActiveTasks(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ranked, err := d.Matcher.Rank(tasks, currentEnergy)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]interface{}{"tasks": ranked})
	}
}

func assessOverwhelmHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := mcp.ParseString(request, "user_id", "")
		energy := mcp.ParseInt(request, "energy_level", 0)
		stress := mcp.ParseInt(request, "stress_level", 0)
		availableHours := mcp.ParseFloat64(request, "available_hours", 0)

		assessment := d.assess(ctx, userID, energy, stress, availableHours)
		if assessment == nil {
			return mcp.NewToolResultError("failed to load workload"), nil
		}

		return jsonResult(assessment)
	}
}

// assess builds a workload snapshot and scores it. availableHours 0 means
// ask the calendar. Returns nil only when storage fails.
func (d *Deps) assess(ctx context.Context, userID string, energy, stress int, availableHours float64) *planner.Assessment {
	now := time.Now()

	if availableHours <= 0 && d.Calendar != nil {
		hours, err := d.Calendar.AvailableHours(ctx, now)
		if err != nil {
			d.Logger.Warn("calendar lookup failed, using configured workday", zap.Error(err))
			hours = d.Config.Calendar.WorkdayHours
		}
		availableHours = hours
	}
	if availableHours <= 0 {
		availableHours = d.Config.Calendar.WorkdayHours
	}

	snap, err := d.DB.LoadWorkloadSnapshot(ctx, userID, now, availableHours, energy, stress)
	if err != nil {
		d.Logger.Error("failed to load workload snapshot", zap.Error(err))
		return nil
	}

	tasks, err := d.DB.ActiveTasks(ctx, userID)
	if err != nil {
		d.Logger.Warn("failed to load tasks for mitigations", zap.Error(err))
		tasks = nil
	}

	assessment := d.Detector.Assess(snap, tasks, now)
	return &assessment
}

func requestBreakdownHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in := breakdown.Input{
			TaskID:           mcp.ParseString(request, "task_id", ""),
			Title:            mcp.ParseString(request, "title", ""),
			Description:      mcp.ParseString(request, "description", ""),
			UserEnergy:       mcp.ParseInt(request, "user_energy", 0),
			AvailableMinutes: mcp.ParseInt(request, "available_minutes", 60),
			Style:            mcp.ParseString(request, "style", ""),
		}

		if in.TaskID != "" {
			t, err := d.DB.GetTask(ctx, in.TaskID)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if t == nil {
				return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", in.TaskID)), nil
			}
			in.Title = t.Title
			in.Description = t.Description
			if in.Description == "" {
				in.Description = t.Title
			}
			in.EstimatedMinutes = t.EstimatedMinutes
		}

		res, err := d.Breakdown.Breakdown(ctx, in)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		out := map[string]interface{}{"breakdown": res}
		if in.TaskID != "" {
			sessionID := mcp.ParseString(request, "session_id", "default")
			d.DB.Proposals.Stage(sessionID, &db.Proposal{TaskID: in.TaskID, Subtasks: res.Subtasks})
			out["staged"] = sessionID
			out["hint"] = "Call 'apply_breakdown' to persist these subtasks, or request again to refine."
		}

		return jsonResult(out)
	}
}

func applyBreakdownHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := mcp.ParseString(request, "session_id", "default")

		p, err := d.DB.ApplyProposal(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Applied %d subtasks to task %s", len(p.Subtasks), p.TaskID)), nil
	}
}

func startSessionHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := mcp.ParseString(request, "user_id", "")

		state, err := d.Sessions.Start(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(state)
	}
}

func advanceSessionHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := mcp.ParseString(request, "session_id", "")

		turn := session.TurnInput{
			Content:       mcp.ParseString(request, "content", ""),
			EffortMinutes: mcp.ParseInt(request, "effort_minutes", 0),
			Confirm:       mcp.ParseBoolean(request, "confirm", false),
		}
		if deadline, err := parseDate(request, "deadline"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		} else if deadline != nil {
			turn.Deadline = deadline
		}

		state, err := d.Sessions.Advance(ctx, sessionID, turn)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(state)
	}
}

func closeSessionHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := mcp.ParseString(request, "session_id", "")

		state, err := d.Sessions.Close(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(state)
	}
}

func createGoalHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		g := &models.Goal{
			UserID:      mcp.ParseString(request, "user_id", ""),
			Title:       mcp.ParseString(request, "title", ""),
			Description: mcp.ParseString(request, "description", ""),
			Priority:    mcp.ParseInt(request, "priority", 0),
		}
		if g.Title == "" {
			return mcp.NewToolResultError("title must not be empty"), nil
		}
		if target, err := parseDate(request, "target_date"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		} else if target != nil {
			g.TargetDate = target
		}

		if err := d.DB.CreateGoal(ctx, g); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]interface{}{"goal": g})
	}
}

func listGoalsHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := mcp.ParseString(request, "user_id", "")

		goals, err := d.DB.ListGoals(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]interface{}{"goals": goals})
	}
}

func addMilestoneHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		m := &models.Milestone{
			GoalID:        mcp.ParseString(request, "goal_id", ""),
			Title:         mcp.ParseString(request, "title", ""),
			SequenceOrder: mcp.ParseInt(request, "sequence_order", 0),
		}
		if m.Title == "" {
			return mcp.NewToolResultError("title must not be empty"), nil
		}
		if due, err := parseDate(request, "due_date"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		} else if due != nil {
			m.DueDate = due
		}

		if err := d.DB.AddMilestone(ctx, m); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]interface{}{"milestone": m})
	}
}

func completeMilestoneHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		milestoneID := mcp.ParseString(request, "milestone_id", "")
		completed := mcp.ParseBoolean(request, "completed", true)

		if err := d.DB.SetMilestoneCompleted(ctx, milestoneID, completed); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Milestone updated successfully"), nil
	}
}

func listSubtasksHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID := mcp.ParseString(request, "task_id", "")

		subtasks, err := d.DB.ListSubtasks(ctx, taskID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]interface{}{"subtasks": subtasks})
	}
}

func startSubtaskHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		subtaskID := mcp.ParseString(request, "subtask_id", "")

		if err := d.DB.StartSubtask(ctx, subtaskID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Subtask started successfully"), nil
	}
}

func completeSubtaskHandler(d *Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		subtaskID := mcp.ParseString(request, "subtask_id", "")

		if err := d.DB.CompleteSubtask(ctx, subtaskID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText("Subtask completed successfully"), nil
	}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseDate(request mcp.CallToolRequest, key string) (*time.Time, error) {
	s := mcp.ParseString(request, key, "")
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s, want RFC3339: %v", key, err)
	}
	return &t, nil
}
