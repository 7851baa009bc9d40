package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/cron"
)

// CronTool exposes add|list|remove over the cron Service (§4.6, §4.8).
type CronTool struct {
	svc *cron.Service
}

func NewCronTool(svc *cron.Service) *CronTool {
	return &CronTool{svc: svc}
}

func (t *CronTool) Name() string        { return "cron" }
func (t *CronTool) Description() string { return "Schedule, list, or remove reminders and recurring jobs" }
func (t *CronTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action":        map[string]interface{}{"type": "string", "enum": []string{"add", "list", "remove"}},
			"name":          map[string]interface{}{"type": "string", "description": "Friendly name for the job"},
			"at":            map[string]interface{}{"type": "string", "description": "ISO-8601 timestamp for a one-shot job"},
			"every_seconds": map[string]interface{}{"type": "integer", "description": "Interval in seconds for a recurring job"},
			"cron_expr":     map[string]interface{}{"type": "string", "description": "Standard 5-field cron expression"},
			"tz":            map[string]interface{}{"type": "string", "description": "IANA timezone to evaluate cron_expr in, e.g. Asia/Ho_Chi_Minh (defaults to server-local time)"},
			"message":       map[string]interface{}{"type": "string", "description": "Message to deliver to the agent when the job fires"},
			"deliver":       map[string]interface{}{"type": "boolean", "description": "Publish the result as an outbound message"},
			"channel":       map[string]interface{}{"type": "string", "description": "Outbound channel, required if deliver is true"},
			"to":            map[string]interface{}{"type": "string", "description": "Outbound recipient, required if deliver is true"},
			"job_id":        map[string]interface{}{"type": "string", "description": "Job id, required for remove"},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	switch action {
	case "add":
		return t.add(ctx, args)
	case "list":
		return t.list()
	case "remove":
		return t.remove(ctx, args)
	default:
		return ErrorResult(fmt.Sprintf("unknown action %q; expected add, list, or remove", action))
	}
}

func (t *CronTool) add(ctx context.Context, args map[string]interface{}) *Result {
	message, _ := args["message"].(string)
	if message == "" {
		return ErrorResult("message is required")
	}
	name, _ := args["name"].(string)
	deliver, _ := args["deliver"].(bool)
	channel, _ := args["channel"].(string)
	to, _ := args["to"].(string)

	atStr, hasAt := args["at"].(string)
	everyRaw, hasEvery := args["every_seconds"]
	cronExpr, hasCron := args["cron_expr"].(string)
	cronTZ, _ := args["tz"].(string)

	var kind cron.Kind
	var atMs, everySeconds int64

	switch {
	case hasAt && atStr != "":
		t, err := time.Parse(time.RFC3339, atStr)
		if err != nil {
			return ErrorResult(fmt.Sprintf("at must be ISO-8601: %v", err))
		}
		kind = cron.KindAt
		atMs = t.UnixMilli()
	case hasEvery:
		seconds, ok := toInt64(everyRaw)
		if !ok || seconds <= 0 {
			return ErrorResult("every_seconds must be > 0")
		}
		kind = cron.KindEvery
		everySeconds = seconds
	case hasCron && cronExpr != "":
		kind = cron.KindCron
	default:
		return ErrorResult("one of at, every_seconds, or cron_expr is required")
	}

	if deliver && (channel == "" || to == "") {
		return ErrorResult("deliver requires both channel and to")
	}

	id, err := t.svc.AddWithTZ(ctx, name, kind, atMs, everySeconds, cronExpr, cronTZ, message, deliver, channel, to)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(fmt.Sprintf("scheduled job %s", id))
}

func (t *CronTool) list() *Result {
	jobs := t.svc.List()
	if len(jobs) == 0 {
		return SilentResult("no scheduled jobs")
	}
	out := ""
	for _, j := range jobs {
		out += fmt.Sprintf("%s [%s] %s next_run=%d last_status=%s\n", j.ID, j.Kind, j.Name, j.NextRunMs, j.LastStatus)
	}
	return SilentResult(out)
}

func (t *CronTool) remove(ctx context.Context, args map[string]interface{}) *Result {
	id, _ := args["job_id"].(string)
	if id == "" {
		return ErrorResult("job_id is required")
	}
	if err := t.svc.Remove(ctx, id); err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(fmt.Sprintf("removed job %s", id))
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
