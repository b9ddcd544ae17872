package main

import "time"

// Method names dispatched through pkg/daemon's Service.RegisterHandler.
// Each is namespaced by the CLI subcommand group it backs.
const (
	methodJobList   = "job.list"
	methodJobInfo   = "job.info"
	methodJobPause  = "job.pause"
	methodJobResume = "job.resume"
	methodJobCancel = "job.cancel"
	methodJobClear  = "job.clear"

	methodPairInit   = "pair.init"
	methodPairJoin   = "pair.join"
	methodPairStatus = "pair.status"

	methodDeviceList   = "device.list"
	methodDeviceRevoke = "device.revoke"

	methodDropSend = "drop.send"
)

// jobSummary is the wire shape of one job report, trimmed to what the CLI
// displays; it mirrors pkg/job.Report rather than reusing it directly so
// the daemon's IPC surface doesn't leak pkg/job's internal Progress/Log
// bookkeeping types verbatim.
type jobSummary struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Status            string    `json:"status"`
	Completed         int64     `json:"completed"`
	Total             int64     `json:"total"`
	Message           string    `json:"message"`
	NonCriticalErrors []string  `json:"nonCriticalErrors,omitempty"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type jobListParams struct {
	Status string `json:"status,omitempty"`
	Recent bool   `json:"recent,omitempty"`
}

type jobListResult struct {
	Jobs []jobSummary `json:"jobs"`
}

type jobIDParams struct {
	ID string `json:"id"`
}

type jobInfoResult struct {
	Job jobSummary `json:"job"`
}

type jobClearParams struct {
	Failed bool `json:"failed,omitempty"`
}

type jobClearResult struct {
	Removed int `json:"removed"`
}

// pairInitResult carries the mnemonic back to the CLI immediately; the
// actual handshake with a joiner completes asynchronously in the daemon,
// polled for via pair.status.
type pairInitResult struct {
	Mnemonic  string    `json:"mnemonic"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type pairJoinParams struct {
	Mnemonic string `json:"mnemonic"`
}

type pairJoinResult struct {
	DeviceUUID string `json:"deviceUuid"`
	Name       string `json:"name"`
}

// pairStatusResult reports the single most recent pairing attempt this
// daemon process has driven, since only one Initiate is outstanding at a
// time (per spec.md §4.8, a fresh "pair init" supersedes any prior one).
type pairStatusResult struct {
	Active     bool   `json:"active"`
	State      string `json:"state,omitempty"`
	DeviceUUID string `json:"deviceUuid,omitempty"`
	Name       string `json:"name,omitempty"`
	Error      string `json:"error,omitempty"`
}

type deviceSummary struct {
	DeviceUUID string `json:"deviceUuid"`
	Name       string `json:"name"`
	OS         string `json:"os"`
	AppVersion string `json:"appVersion"`
}

type deviceListResult struct {
	Devices []deviceSummary `json:"devices"`
}

type deviceRevokeParams struct {
	DeviceUUID string `json:"deviceUuid"`
}

type dropSendParams struct {
	DeviceUUID string `json:"deviceUuid"`
	FilePath   string `json:"filePath"`
}
