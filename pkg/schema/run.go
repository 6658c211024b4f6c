package schema

// RunStage is the lifecycle stage of a generation run.
type RunStage string

const (
	RunStageIdle         RunStage = "idle"
	RunStagePlanning     RunStage = "planning"
	RunStageSynthesizing RunStage = "synthesizing"
	RunStageRetrying     RunStage = "retrying"
	RunStageComplete     RunStage = "complete"
	RunStageFailed       RunStage = "failed"
	RunStageCancelled    RunStage = "cancelled"
)

// Terminal reports whether the stage ends the run.
func (s RunStage) Terminal() bool {
	return s == RunStageComplete || s == RunStageFailed || s == RunStageCancelled
}

func (s RunStage) String() string { return string(s) }
