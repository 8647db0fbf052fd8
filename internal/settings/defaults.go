package settings

import "github.com/starford/ansuz/internal/models"

// DefaultTemplates returns the built-in capture templates. At least one
// template must always exist; the store rejects deleting the last one.
func DefaultTemplates() []models.Template {
	return []models.Template{
		{
			ID:              "quick",
			Name:            "Quick Note",
			FilenamePattern: "{{title}}",
			ContentTemplate: `---
uuid: "{{uuid}}"
source_url: "{{source_url}}"
source_title: "{{source_title}}"
created: "{{created}}"
type: note
---

`,
		},
		{
			ID:              "bookmark",
			Name:            "Bookmark",
			FilenamePattern: "{{date}} - {{title}}",
			ContentTemplate: `---
uuid: "{{uuid}}"
source_url: "{{source_url}}"
source_title: "{{source_title}}"
created: "{{created}}"
type: bookmark
---

## [{{source_title}}]({{source_url}})

**Why saved:**


**Tags:** #bookmark
`,
		},
		{
			ID:              "quote",
			Name:            "Quote",
			FilenamePattern: "Quote - {{title}}",
			ContentTemplate: `---
uuid: "{{uuid}}"
source_url: "{{source_url}}"
source_title: "{{source_title}}"
created: "{{created}}"
type: quote
---

> [!quote] From [{{source_title}}]({{source_url}})
>

**My thoughts:**

`,
		},
		{
			ID:              "idea",
			Name:            "Idea",
			FilenamePattern: "Idea - {{date}}",
			ContentTemplate: `---
uuid: "{{uuid}}"
source_url: "{{source_url}}"
source_title: "{{source_title}}"
created: "{{created}}"
type: idea
---

## Idea

**Trigger:** [{{source_title}}]({{source_url}})

**The idea:**


**Next steps:**
- [ ]

`,
		},
		{
			ID:              "reading",
			Name:            "Reading Note",
			FilenamePattern: "Reading - {{title}}",
			ContentTemplate: `---
uuid: "{{uuid}}"
source_url: "{{source_url}}"
source_title: "{{source_title}}"
created: "{{created}}"
type: reading
status: in-progress
---

# {{source_title}}

**Source:** [Link]({{source_url}})

## Key Points


## Quotes


## My Summary


## Action Items
- [ ]

`,
		},
	}
}
