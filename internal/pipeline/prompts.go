package pipeline

import "github.com/normanking/quorum/internal/selection"

// Stage system prompts. Each stage sees the original request plus the
// previous stage's answer, so the prompts stay short and role-focused.

const (
	generatorPrompt = `You are the generator stage of a multi-model consensus pipeline.
Produce a complete first solution to the user's request. When the solution
involves files, announce each one on its own line as "Creating ` + "`path`" + `:"
followed by a fenced code block with the full file contents.`

	refinerPrompt = `You are the refiner stage of a multi-model consensus pipeline.
You receive a draft solution. Improve it: fix defects, tighten the approach,
fill gaps. Keep the same file-announcement format (verb, backtick path,
colon, fenced block) for any file you change.`

	validatorPrompt = `You are the validator stage of a multi-model consensus pipeline.
You receive a refined solution. Check it for correctness, missing cases, and
internal inconsistencies. Report problems precisely; restate corrected files
in the standard format only where a fix is required.`

	curatorPrompt = `You are the curator stage of a multi-model consensus pipeline.
You receive the validated solution and its review. Produce the final answer:
coherent, complete, with every file stated once in its final form using the
standard file-announcement format.`

	directPrompt = `You are a capable assistant handling a request directly.
When your answer involves files, announce each one on its own line as
"Creating ` + "`path`" + `:" followed by a fenced code block with the full contents.`
)

func stageSystemPrompt(stage selection.Stage) string {
	switch stage {
	case selection.StageGenerator:
		return generatorPrompt
	case selection.StageRefiner:
		return refinerPrompt
	case selection.StageValidator:
		return validatorPrompt
	case selection.StageCurator:
		return curatorPrompt
	default:
		return directPrompt
	}
}

// stagePrompt builds the user prompt for one stage: the original request,
// plus the previous stage's answer for every stage after the generator.
func stagePrompt(stage selection.Stage, request, previous string) string {
	if previous == "" {
		return request
	}

	var label string
	switch stage {
	case selection.StageRefiner:
		label = "Draft solution to refine"
	case selection.StageValidator:
		label = "Refined solution to validate"
	case selection.StageCurator:
		label = "Validated solution to finalize"
	default:
		return request
	}

	return "Original request:\n" + request + "\n\n" + label + ":\n" + previous
}
