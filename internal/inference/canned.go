package inference

// StrictLanguageInstruction is appended to the prompt when the local model
// drifted into another script.
const StrictLanguageInstruction = `IMPORTANT: Respond ONLY in plain English using the Latin alphabet. Do not use Chinese, Japanese, Korean, Cyrillic, Arabic or any other script. Any non-English character makes the answer invalid.`

// cannedReplies stand in for local output that stayed in the wrong script
// after the retry. They are deliberately bland so they fit any context.
var cannedReplies = map[Tier][]string{
	TierFast: {
		"Hmm, let me look around a little longer.",
		"I think I'll stay here for a moment.",
		"So many places to go. Let me think.",
	},
	TierChat: {
		"Beep! My words got jumbled for a second. Could you say that again?",
		"Oops, my language circuits flickered. Let's try that once more!",
		"Sorry, I lost my train of thought. What were we talking about?",
	},
	TierTask: {
		"Worked quietly today and tidied up my bench. I'll pick it up again tomorrow.",
		"Made a little progress, then spent a while sorting my notes.",
		"Today was slow but steady. Tomorrow I'll try a fresh approach.",
	},
}
