package planner

// planAdjustmentPrompt instructs the model to reply with a single JSON object
// so the response can be extracted without a structured-output API.
const planAdjustmentPrompt = `You are a fitness coach reviewing a client's training plan.

Client goal: %s
Recent training summary: %s
Client feedback: %s

Propose adjustments to next week's plan. Respond with ONLY a JSON object in
this exact shape, no markdown fences and no commentary:

{
  "summary": "<one sentence rationale>",
  "adjustments": [
    {"day": "<weekday>", "change": "<what to change>", "reason": "<why>"}
  ]
}`
