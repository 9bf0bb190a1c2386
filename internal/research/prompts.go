package research

import "strings"

// Replies the model is instructed to give verbatim.
const (
	NoSearchesRequired    = "No searches required."
	MoreInformationNeeded = "More information needed."
	SufficientInformation = "Sufficient information."
)

// SearchErrorMarker is the value a run reports when searching failed.
const SearchErrorMarker = "Search error."

// Progress strings pushed to the session while a run advances.
const (
	ProgressSearching  = "🔍 Searching..."
	ProgressBrowsing   = "🕵️‍♂️ Browsing and analyzing..."
	ProgressChecking   = "🤖 Checking research validity..."
	ProgressAnswering  = "🌟 Generating answer..."
	ProgressNoResearch = "🔆 Generating answer..."
)

const originalPromptHeading = "\n\nOriginal System Prompt:\n"

// Prompts holds the instructions injected into private chat calls. The
// content is opaque to the engine; only the sentinel replies above matter.
type Prompts struct {
	IdentifySearches           string
	IdentifyAdditionalSearches string
	GetURLsToBrowse            string
	IsBackgroundInfoSufficient string
	BackgroundInfoPreamble     string
	SearchErrorPreamble        string
	// SummarizeURL has {url} and {content} placeholders.
	SummarizeURL string
}

func DefaultPrompts() Prompts {
	return Prompts{
		IdentifySearches: "The Original System Prompt that follows is your primary objective, but for this chat, you just need to provide a list of a few searches you might need me to perform in order to respond to the current user message, while documenting reference links to any claims you make. " +
			"All technical statements should be backed up with reference links. Only use reference links you have validated in Background Data provided as part of the system prompt. " +
			"If you can answer with full confidence without any searches and don't need to provide references for a simple question by the user, then reply with simply 'No searches required.'. " +
			"Otherwise, send a comma delimited array of searches with one or several searches you would like me to perform for you to give you all the background data and links you need to respond. " +
			"Do nothing else but provide the array of search strings or the 'No searches required.' message.\n\nOriginal System Prompt:\n\n",

		IdentifyAdditionalSearches: "The Original System Prompt that follows is your primary objective, but for this chat, you just need to provide a list of a few additional searches you need me to perform in order to fully research and document your response to the user message. " +
			"If you can answer with full confidence without any searches, then reply with simply 'No searches required.'. " +
			"Otherwise, send a comma delimited array with one or several new searches you would like me to perform for you to give you all the background data and links you need. " +
			"Do nothing else but provide the array of search strings or the 'No searches required.' message. " +
			"Existing gathered background data that you determined was insufficient so far to answer follows.\n\nExisting Background Data:\n\n",

		GetURLsToBrowse: "The Original System Prompt section at the end of this chat is our primary objective, but for this chat, you just need to return a JSON list of URLs that you want to browse for background information in order to fully document your answer to the Original System Prompt for the user. " +
			"Select several sources that will allow you to fully answer and document any claims you make in your final answer to the user for the Original System Prompt. " +
			"Return nothing but a JSON list of strings containing the URLs for the sites you select to browse. " +
			"Try to identify at least 2-3 relevant URLs so you can be thorough in documenting sources. " +
			"Prefer official documentation, but blogs, forums, StackOverflow, and other sources are fine too, and multiple overlapping references are fine to include if they are relevant. " +
			"Here is the JSON summary of the possible sites we can browse:\n\n",

		IsBackgroundInfoSufficient: "The Original System Prompt that follows is your primary objective, but for this chat, you've summarized the content of the URLs you searched and identified for further research. " +
			"Review the summaries below and determine if you have enough background information to fully address the Original System Prompt while documenting all sources from within the researched current links. " +
			"Sometimes no sources are required but usually 2-5 reference links are good to fully confirm ground truth, so try to get at least 2-4 relevant references to cite in your answer. " +
			"If you need more information than the summaries provided here, reply with 'More information needed.' If you have enough information, reply with 'Sufficient information.'\n\n",

		BackgroundInfoPreamble: "IMPORTANT NOTE:\nUse ONLY URLs from the following Background References section to thoroughly document your answer for the customer as described in the Original System Prompt following the Background References section below.\n\nBackground References:\n\n",

		SearchErrorPreamble: "NOTE: An error occurred while searching for background information. Please inform the user that you were unable to search to validate results, but do your best to answer regardless.\n\nPrimary System Message:\n\n",

		SummarizeURL: "The Original System Prompt that follows is your primary objective, but for this chat you identified the following URL for further research to give your answer: {url}. " +
			"Your task now is to provide a summary of relevant content on the page that will help us address the feedback on the URL provided by the user and document current sources. " +
			"Return nothing except your summary of the key points and any important quotes the content on the page in a single string.\n\n" +
			"Page Content:\n\n{content}\n\nOriginal System Prompt:\n\n",
	}
}

// WithDefaults fills empty fields from DefaultPrompts.
func (p Prompts) WithDefaults() Prompts {
	d := DefaultPrompts()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&p.IdentifySearches, d.IdentifySearches)
	fill(&p.IdentifyAdditionalSearches, d.IdentifyAdditionalSearches)
	fill(&p.GetURLsToBrowse, d.GetURLsToBrowse)
	fill(&p.IsBackgroundInfoSufficient, d.IsBackgroundInfoSufficient)
	fill(&p.BackgroundInfoPreamble, d.BackgroundInfoPreamble)
	fill(&p.SearchErrorPreamble, d.SearchErrorPreamble)
	fill(&p.SummarizeURL, d.SummarizeURL)
	return p
}

func (p Prompts) summarizeURL(url, content string) string {
	return strings.NewReplacer("{url}", url, "{content}", content).Replace(p.SummarizeURL)
}
