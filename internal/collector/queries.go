package collector

import "dbmon/internal/models"

// Queries maps each event type to the DMV query that samples it. Deadlocks
// are read separately from the system_health extended-event session, see
// DeadlockQuery.
var Queries = map[string]string{
	models.EventTypeBlocking: `
    SELECT
        r.session_id AS blocked_session_id,
        r.blocking_session_id AS blocking_session_id,
        r.wait_type,
        r.wait_time AS wait_time_ms,
        r.wait_resource,
        r.cpu_time AS cpu_time_ms,
        r.total_elapsed_time AS elapsed_time_ms,
        s.host_name,
        s.program_name,
        s.login_name,
        DB_NAME(r.database_id) AS database_name,
        t.text AS query_text
    FROM sys.dm_exec_requests r
    INNER JOIN sys.dm_exec_sessions s ON r.session_id = s.session_id
    OUTER APPLY sys.dm_exec_sql_text(r.sql_handle) t
    WHERE r.blocking_session_id <> 0;`,

	models.EventTypeOpenTransactions: `
    SELECT
        at.transaction_id,
        at.name AS transaction_name,
        at.transaction_begin_time,
        at.transaction_state,
        DATEDIFF(SECOND, at.transaction_begin_time, GETDATE()) AS duration_seconds,
        s.session_id,
        s.login_name,
        s.host_name,
        s.program_name,
        DB_NAME(r.database_id) AS database_name,
        ISNULL(SUBSTRING(ib.event_info, 1, 500), ISNULL(SUBSTRING(t.text, 1, 500), 'No query text available')) AS query_text,
        CASE WHEN ISNULL(r.blocking_session_id, 0) > 0 THEN 1 ELSE 0 END AS is_blocking,
        ISNULL(r.blocking_session_id, 0) AS blocking_session_id,
        ISNULL(r.wait_type, 'IDLE') AS wait_type,
        ISNULL(r.wait_time, 0) AS wait_time_ms
    FROM sys.dm_tran_active_transactions at
    INNER JOIN sys.dm_tran_session_transactions st ON at.transaction_id = st.transaction_id
    INNER JOIN sys.dm_exec_sessions s ON st.session_id = s.session_id
    LEFT JOIN sys.dm_exec_requests r ON s.session_id = r.session_id
    OUTER APPLY sys.dm_exec_sql_text(r.sql_handle) t
    OUTER APPLY sys.dm_exec_input_buffer(s.session_id, NULL) ib
    WHERE s.session_id != @@SPID
    AND s.program_name NOT LIKE 'dbmon%';`,

	models.EventTypeMissingIndexes: `
    SELECT
        DB_NAME(mid.database_id) AS database_name,
        migs.user_seeks,
        migs.user_scans,
        migs.avg_total_user_cost,
        migs.avg_user_impact,
        mid.statement AS table_name,
        mid.equality_columns,
        mid.inequality_columns,
        mid.included_columns
    FROM sys.dm_db_missing_index_group_stats migs
    INNER JOIN sys.dm_db_missing_index_groups mig ON migs.group_handle = mig.index_group_handle
    INNER JOIN sys.dm_db_missing_index_details mid ON mig.index_handle = mid.index_handle;`,

	// Only currently executing slow queries. Completed queries drop out of
	// the result set on their own, which is why this event type bypasses
	// delta classification.
	models.EventTypeSlowQueries: `
    SELECT TOP 20
        r.session_id,
        r.start_time,
        r.status,
        r.command,
        r.total_elapsed_time AS elapsed_time_ms,
        r.total_elapsed_time AS avg_elapsed_time_ms,
        r.cpu_time AS cpu_time_ms,
        r.logical_reads AS avg_logical_reads,
        r.writes,
        r.wait_type,
        r.wait_time AS wait_time_ms,
        DB_NAME(r.database_id) AS database_name,
        s.host_name,
        s.program_name,
        s.login_name,
        COALESCE(
            SUBSTRING(t.text,
                (r.statement_start_offset/2) + 1,
                ((CASE r.statement_end_offset
                    WHEN -1 THEN DATALENGTH(t.text)
                    ELSE r.statement_end_offset
                END - r.statement_start_offset)/2) + 1
            ),
            t.text,
            'Query text not available'
        ) AS query_text,
        1 AS execution_count
    FROM sys.dm_exec_requests r
    INNER JOIN sys.dm_exec_sessions s ON r.session_id = s.session_id
    OUTER APPLY sys.dm_exec_sql_text(r.sql_handle) t
    WHERE r.session_id <> @@SPID
        AND r.session_id > 50
        AND s.is_user_process = 1
        AND r.total_elapsed_time > 1000
        AND r.status IN ('RUNNING', 'RUNNABLE')
    ORDER BY r.total_elapsed_time DESC;`,

	models.EventTypeCPUMemory: `
    SELECT
        (SELECT TOP 1 cntr_value FROM sys.dm_os_performance_counters
            WHERE counter_name = 'Processor Time' AND instance_name = '_Total') AS cpu_percent,
        (SELECT available_physical_memory_kb / 1024 FROM sys.dm_os_sys_memory) AS available_memory_mb,
        (SELECT total_physical_memory_kb / 1024 FROM sys.dm_os_sys_memory) AS total_memory_mb,
        (SELECT physical_memory_in_use_kb / 1024 FROM sys.dm_os_process_memory) AS sql_memory_in_use_mb;`,

	models.EventTypeTempdbHealth: `
    SELECT
        SUM(user_object_reserved_page_count) * 8 AS user_objects_kb,
        SUM(internal_object_reserved_page_count) * 8 AS internal_objects_kb,
        SUM(version_store_reserved_page_count) * 8 AS version_store_kb,
        SUM(unallocated_extent_page_count) * 8 AS free_space_kb
    FROM tempdb.sys.dm_db_file_space_usage;`,
}

// DeadlockQuery reads recent deadlock reports from the system_health
// extended-event file target.
const DeadlockQuery = `
IF EXISTS (SELECT 1 FROM sys.server_event_sessions WHERE name = 'system_health')
BEGIN
    DECLARE @path NVARCHAR(260);
    SELECT @path = CAST(target_data AS XML).value('(EventFileTarget/File/@name)[1]', 'nvarchar(260)')
    FROM sys.dm_xe_sessions s
    JOIN sys.dm_xe_session_targets t ON s.address = t.event_session_address
    WHERE s.name = 'system_health' AND t.target_name = 'event_file';

    SELECT TOP 20
        CAST(event_data AS XML) AS deadlock_xml,
        DATEADD(mi, DATEDIFF(mi, GETUTCDATE(), CURRENT_TIMESTAMP),
            CAST(event_data AS XML).value('(event/@timestamp)[1]', 'datetime2')) AS event_time
    FROM sys.fn_xe_file_target_read_file(@path, NULL, NULL, NULL)
    WHERE object_name = 'xml_deadlock_report'
    ORDER BY event_time DESC;
END`
