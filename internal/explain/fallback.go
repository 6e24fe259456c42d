package explain

import (
	"fmt"
	"strconv"
	"strings"

	"dbmon/internal/models"
)

// Fallback builds the deterministic template explanation for an event. It
// is always available and covers every known event type plus a generic
// no-issue result for unrecognized ones.
func Fallback(ev models.Event) models.Explanation {
	payload := ev.Payload
	switch ev.EventType {
	case models.EventTypeBlocking:
		blocked := displayValue(payload["blocked_session_id"])
		blocking := displayValue(payload["blocking_session_id"])
		waitMs := displayValue(payload["wait_time_ms"])
		return models.Explanation{
			Summary: fmt.Sprintf("🔒 Your query (session %s) is stuck waiting", blocked),
			Details: fmt.Sprintf("It's been waiting for %s ms because session %s is using the same data.", waitMs, blocking),
			Analysis: "Think of it like waiting in line: someone else is modifying the same table/row you need. " +
				"Your query can't proceed until they're done.",
			Recommendations: []string{
				"👉 If the blocking session is yours: Make sure your code commits or rollbacks the transaction quickly (add COMMIT or ROLLBACK).",
				"👉 If the blocking session is someone else's: Ask them to finish their transaction or contact your DBA.",
				"💡 Prevention: Keep transactions SHORT - don't leave BEGIN TRANSACTION open while waiting for user input or doing long operations.",
				"💡 Add WHERE clauses to update/delete only the rows you need (less blocking for others).",
			},
		}

	case models.EventTypeDeadlocks:
		return models.Explanation{
			Summary: "💀 DEADLOCK: Two queries got stuck waiting for each other",
			Details: "SQL Server detected a circular wait and killed one of the queries to break the deadlock.",
			Analysis: "Imagine two people at a narrow doorway, each blocking the other. Neither can proceed. " +
				"This happens when queries lock tables in different orders.",
			Recommendations: []string{
				"👉 IMMEDIATE FIX: Retry the failed query - it will work now that the deadlock is broken.",
				"💡 Long-term fix: Always access tables in the SAME ORDER in all your code (e.g., always update Users before Orders, not sometimes reversed).",
				"💡 Use smaller transactions - don't lock multiple tables at once if you can avoid it.",
				"💡 Add proper indexes to make queries faster (less time holding locks = fewer deadlocks).",
			},
		}

	case models.EventTypeOpenTransactions:
		txn := displayValue(payload["transaction_id"])
		session := displayValue(payload["session_id"])
		if session == "" {
			session = "unknown"
		}
		return models.Explanation{
			Summary: fmt.Sprintf("⚠️ A transaction has been left open (session %s)", session),
			Details: fmt.Sprintf("Transaction %s started but never finished with COMMIT or ROLLBACK.", txn),
			Analysis: "It's like leaving your database 'in progress' - the database is holding locks waiting for you to say 'I'm done!' " +
				"This blocks other users and can cause slowdowns.",
			Recommendations: []string{
				"👉 CHECK YOUR CODE: Do you have a BEGIN TRANSACTION without a matching COMMIT or ROLLBACK?",
				"👉 COMMON BUG: Exceptions/errors in your code might skip the COMMIT. Always use try/catch/finally to ensure transactions complete.",
				"💡 Code pattern: BEGIN TRANSACTION → do work → if success COMMIT else ROLLBACK",
				"💡 Avoid: Transactions spanning multiple API calls or user interactions (transaction should complete in milliseconds, not minutes).",
			},
		}

	case models.EventTypeMissingIndexes:
		table := displayValue(payload["table_name"])
		impact := displayValue(payload["avg_user_impact"])
		seeks := numValue(payload["user_seeks"])
		scans := numValue(payload["user_scans"])
		return models.Explanation{
			Summary: fmt.Sprintf("📊 SQL Server suggests adding an index to %s", table),
			Details: fmt.Sprintf("Your queries would be ~%s%% faster. This suggestion came from %s queries scanning this table.",
				impact, formatCount(seeks+scans)),
			Analysis: "Without an index, the database reads EVERY row in the table to find what you need " +
				"(like reading a book page by page instead of using the index). An index makes lookups instant.",
			Recommendations: []string{
				"👉 SHARE THIS WITH YOUR DBA: They can add the index safely in production.",
				"💡 For learning: In SQL Server Management Studio, run your slow query and click 'Display Estimated Execution Plan' - green text shows missing index suggestions.",
				"💡 Quick test: Ask your DBA to add the index in a test database first to verify the improvement.",
				"💡 The suggested columns to index are shown in the data (equality_columns, inequality_columns).",
			},
		}

	case models.EventTypeSlowQueries:
		avgMs := numValue(payload["avg_elapsed_time_ms"])
		execCount := displayValue(payload["execution_count"])
		queryText := truncate(stringValue(payload["query_text"]), 200)
		avgReads := numValue(payload["avg_logical_reads"])
		return models.Explanation{
			Summary: fmt.Sprintf("🐢 Slow query taking %s on average", formatElapsed(avgMs)),
			Details: fmt.Sprintf("Executed %s times. Reading %s data pages per execution. Query: %s...",
				execCount, formatCount(avgReads), queryText),
			Analysis: "Your query is taking too long. This could be: (1) missing indexes (searching row-by-row), " +
				"(2) fetching too much data, or (3) joining too many tables inefficiently.",
			Recommendations: []string{
				"👉 STEP 1: Add WHERE clauses to filter data early - don't fetch everything then filter in your code.",
				"👉 STEP 2: Only SELECT the columns you actually need (avoid SELECT *).",
				"💡 Check for missing indexes: Run your query in SQL Server Management Studio → Query → Display Estimated Execution Plan → look for table scans or missing index hints.",
				"💡 Large result sets? Use pagination (OFFSET/FETCH or TOP N) instead of loading thousands of rows.",
				"💡 Joins: Make sure you're joining on indexed columns (usually primary/foreign keys).",
			},
		}

	case models.EventTypeCPUMemory:
		cpu := displayValue(payload["cpu_percent"])
		avail := numValue(payload["available_memory_mb"])
		total := numValue(payload["total_memory_mb"])
		inUse := numValue(payload["sql_memory_in_use_mb"])
		return models.Explanation{
			Summary: "💻 Server resource snapshot",
			Details: fmt.Sprintf("CPU: %s%% | Available memory: %s MB of %s MB | SQL Server using: %s MB",
				cpu, formatCount(avail), formatCount(total), formatCount(inUse)),
			Analysis: "High CPU means queries are working hard (calculations, sorting, etc.). " +
				"Low memory means the server might be swapping to disk (very slow).",
			Recommendations: []string{
				"👉 HIGH CPU? Look at slow queries above - one expensive query can max out CPU.",
				"💡 If CPU is constantly high: Consider adding indexes, optimizing queries, or scaling up your server.",
				"💡 LOW MEMORY? Contact your DBA - they may need to adjust SQL Server memory settings or add more RAM.",
				"💡 For developers: Write efficient queries (use WHERE, avoid functions in WHERE clause, use proper joins).",
			},
		}

	case models.EventTypeTempdbHealth:
		freeMB := numValue(payload["free_space_kb"]) / 1024
		userMB := numValue(payload["user_objects_kb"]) / 1024
		internalMB := numValue(payload["internal_objects_kb"]) / 1024
		return models.Explanation{
			Summary: "🗄️ TempDB (SQL Server's scratch space) status",
			Details: fmt.Sprintf("Free space: %.1f MB | User objects: %.1f MB | Internal: %.1f MB",
				freeMB, userMB, internalMB),
			Analysis: "TempDB is like SQL Server's notepad - it stores temporary tables, sorting results, etc. " +
				"If it fills up, queries will fail or become very slow.",
			Recommendations: []string{
				"👉 LOW SPACE? Check if your code is creating large #TempTables or doing ORDER BY on huge result sets.",
				"💡 Avoid: SELECT * from large tables then sorting - filter with WHERE first to reduce data.",
				"💡 Avoid: Huge JOIN results that need sorting - add indexes to avoid TempDB spills.",
				"💡 #TempTables: Make sure you DROP them when done (they use TempDB space).",
			},
		}
	}

	return models.Explanation{
		Summary:  "📊 Database metric captured",
		Details:  "This metric is being tracked for monitoring trends.",
		Analysis: "No specific issue detected with this metric right now.",
		Recommendations: []string{
			"Keep monitoring - if values change significantly, it might indicate a problem.",
		},
	}
}

// formatElapsed renders an elapsed time in seconds when at least one
// second, milliseconds otherwise.
func formatElapsed(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.1f seconds", ms/1000)
	}
	return fmt.Sprintf("%.0f milliseconds", ms)
}

// formatCount renders a whole number with thousands separators.
func formatCount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func numValue(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return 0
}

// displayValue renders any payload scalar for interpolation, with integral
// floats shown without a fractional part.
func displayValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}
