package common

// UIHooks is azcopy's common.JobUIHooks narrowed to this engine's host
// contract (§6.1/§6.2): a struct of callback fields, not an interface, so
// a host that only cares about "Solve Error" prompts doesn't have to
// implement every method with a no-op body.
type UIHooks struct {
	Prompt func(message string, d PromptDetails) ResponseOption
	Info   func(string)
	Warn   func(string)
}

// PromptDetails carries the problem code and the resolutions the policy
// table (§6.3/§6.4) permits for it, so the host can render exactly the
// offered actions.
type PromptDetails struct {
	ProblemID   ProblemID
	Resolutions []ResponseOption
}

type ResponseOption int

const (
	ResponseDefault ResponseOption = iota
	ResponseSkip
	ResponseRetry
	ResponseAutoRename
	ResponseOverwrite
	ResponseResume
	ResponseResumeOrOverwrite
	ResponseJoinExisting
	ResponseIgnore
	ResponseRestartInBinary
	ResponseDeleteIt
	ResponseApplyToAll
)

func NewUIHooks() *UIHooks {
	return &UIHooks{
		Prompt: func(string, PromptDetails) ResponseOption { return ResponseDefault },
		Info:   func(string) {},
		Warn:   func(string) {},
	}
}

var hooks = NewUIHooks()

func SetUIHooks(h *UIHooks) { hooks = h }
func GetUIHooks() *UIHooks  { return hooks }
