package constant

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCompleted  JobStatus = "COMPLETED"
)

type JobType string

const (
	JobTypeMerge  JobType = "merge"
	JobTypeUpload JobType = "upload"
)

type RecordingState string

const (
	RecordingStateIdle      RecordingState = "IDLE"
	RecordingStateRecording RecordingState = "RECORDING"
	RecordingStateStopped   RecordingState = "STOPPED"
)

type ClipKind string

const (
	ClipKindVideo ClipKind = "video"
	ClipKindAudio ClipKind = "audio"
)

func (k ClipKind) String() string {
	return string(k)
}

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
