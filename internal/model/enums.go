package model

// EmotionType is one of the emotions the analysis collaborator can report.
type EmotionType string

const (
	EmotionHappiness    EmotionType = "happiness"
	EmotionGratitude    EmotionType = "gratitude"
	EmotionExcitement   EmotionType = "excitement"
	EmotionPeace        EmotionType = "peace"
	EmotionSatisfaction EmotionType = "satisfaction"
	EmotionSadness      EmotionType = "sadness"
	EmotionAnger        EmotionType = "anger"
	EmotionAnxiety      EmotionType = "anxiety"
	EmotionFear         EmotionType = "fear"
	EmotionFrustration  EmotionType = "frustration"
	EmotionLoneliness   EmotionType = "loneliness"
	EmotionExhaustion   EmotionType = "exhaustion"
	EmotionCalm         EmotionType = "calm"
	EmotionConfusion    EmotionType = "confusion"
	EmotionSurprise     EmotionType = "surprise"
	EmotionBoredom      EmotionType = "boredom"
	EmotionHope         EmotionType = "hope"
	EmotionLove         EmotionType = "love"
)

// legacyEmotions maps names written by older app versions.
var legacyEmotions = map[string]EmotionType{
	"joy":     EmotionHappiness,
	"neutral": EmotionCalm,
}

// NormalizeEmotion resolves legacy emotion names. Unknown names pass through
// unchanged so data from newer clients is not lost.
func NormalizeEmotion(s string) EmotionType {
	if e, ok := legacyEmotions[s]; ok {
		return e
	}
	return EmotionType(s)
}

// AIModel tags which model generated a report.
type AIModel string

const (
	ModelHaiku     AIModel = "haiku"
	ModelSonnet    AIModel = "sonnet"
	ModelGPT4oMini AIModel = "gpt-4o-mini"
	ModelOSS120B   AIModel = "oss-120b"
)

// DefaultAIModel tags reports generated without an explicit model.
const DefaultAIModel = ModelOSS120B

// Language is the transcription and UI language.
type Language string

const (
	LanguageKorean  Language = "ko"
	LanguageEnglish Language = "en"
)

// Theme is the UI colour scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ReportFrequency controls how often reports are generated.
type ReportFrequency string

const (
	FrequencyDaily   ReportFrequency = "daily"
	FrequencyWeekly  ReportFrequency = "weekly"
	FrequencyMonthly ReportFrequency = "monthly"
)
