// Package worker contains the two periodic processes of the platform: the
// campaign scheduler loop and the mailbox sync worker. Each runs on its
// own ticker in its own failure domain; they share only the store.
package worker

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"
)

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

func newWorkerID(kind string) string {
	return fmt.Sprintf("%s-%s-%d", kind, getHostname(), time.Now().UnixNano()%10000)
}

// registry records live worker instances in the outreach_workers table so
// operators can see which scheduler/sync instances are running where.
// Registration is best-effort: a registry failure never blocks the worker.
type registry struct {
	db         *sql.DB
	workerID   string
	workerType string
}

func newRegistry(db *sql.DB, workerID, workerType string) *registry {
	return &registry{db: db, workerID: workerID, workerType: workerType}
}

func (r *registry) register() {
	if r.db == nil {
		return
	}
	_, err := r.db.Exec(`
		INSERT INTO outreach_workers (id, worker_type, hostname, status, started_at, last_heartbeat_at)
		VALUES ($1, $2, $3, 'running', NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET status = 'running', last_heartbeat_at = NOW()
	`, r.workerID, r.workerType, getHostname())
	if err != nil {
		log.Printf("[%s] Warning: failed to register worker: %v", r.workerType, err)
	}
}

func (r *registry) deregister() {
	if r.db == nil {
		return
	}
	_, err := r.db.Exec(`
		UPDATE outreach_workers SET status = 'stopped' WHERE id = $1
	`, r.workerID)
	if err != nil {
		log.Printf("[%s] Warning: failed to deregister worker: %v", r.workerType, err)
	}
}

func (r *registry) heartbeat(metadata string) {
	if r.db == nil {
		return
	}
	r.db.Exec(`
		UPDATE outreach_workers
		SET last_heartbeat_at = NOW(), metadata = $2
		WHERE id = $1
	`, r.workerID, metadata)
}
