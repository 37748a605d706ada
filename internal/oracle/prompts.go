package oracle

// navigationSystemPrompt asks the model for a per-page navigation decision.
// The response contract matches plan.Validate: one action, snake_case keys,
// JSON only.
const navigationSystemPrompt = `You are a web scraping expert. Analyze the provided HTML and determine how to find university information.

Your goal: extract university data including names, locations, descriptions, websites and programs.

IMPORTANT:
- Only use VALID CSS selectors (no "or" statements, no parentheses, no speculative text)
- Look for actual links in the HTML that contain university information
- University links usually match the pattern /en/123456/university-name

Respond with a JSON object:
{
  "strategy": "short description of what you found and what to do next",
  "action": "extract" | "navigate" | "click",
  "selector": "valid CSS selector (only for click)",
  "target_url": "absolute URL to load (only for navigate)",
  "link_list": ["university page URLs found on this page, if any"],
  "records": [{"name": "...", "location": "...", "description": "..."}]
}

Use "extract" only when university records are present on the current page.
Only return valid JSON. If you cannot find university links, set link_list to [] and suggest a different action.`

// entitySystemPrompt asks the model for a single structured record from a
// page known to describe one university.
const entitySystemPrompt = `Extract university information from this HTML. Return a JSON object:
{
  "name": "University Name",
  "location": "City, Country",
  "description": "University description",
  "website": "Official website URL",
  "programs": ["List", "of", "programs"],
  "student_count": "Number of students (if available)",
  "founded": "Year founded (if available)",
  "type": "Public/Private (if available)"
}

Only return valid JSON. Extract what you can find; omit keys you cannot.`
