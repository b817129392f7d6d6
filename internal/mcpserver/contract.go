package mcpserver

// FrontmatterFormat describes the frontmatter keys ogfetch reads and writes,
// for LLM consumers that prepare documents for fetching.
const FrontmatterFormat = `# ogfetch Frontmatter Format

ogfetch reads the ` + "`" + `url` + "`" + ` key of a Markdown document's leading YAML block,
fetches the page's OpenGraph metadata and writes it back into the same block.

## Input

` + "```" + `markdown
---
url: https://example.com/article   # REQUIRED - a plain string
tags: [reading]                     # any other keys are preserved as written
---

Notes about the article.
` + "```" + `

## Managed keys

| Key | Written from |
|---|---|
| og_title | page title |
| og_description | page description |
| og_image | preview image URL |
| og_favicon | site favicon URL |
| og_last_fetch | UTC time of the fetch, e.g. 2025-02-03T04:05:06.789Z |

Key names can be remapped in the server configuration.

## Failures

When a fetch fails the block gains ` + "`" + `og_error` + "`" + `, ` + "`" + `og_error_timestamp` + "`" + ` and
` + "`" + `og_error_code` + "`" + ` (e.g. FETCH_FAILURE, MISSING_CREDENTIAL). The next successful fetch
removes them. Managed keys are never cleared by a failure.

## Rules

1. The block must start on the first line with ` + "`" + `---` + "`" + ` and end with a line that is exactly ` + "`" + `---` + "`" + `.
2. Only flat keys are supported: strings, numbers, booleans, null and lists of strings.
3. Existing values are kept unless the fetch is asked to overwrite them.
4. The document body below the block is never modified.
`
