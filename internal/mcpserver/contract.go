package mcpserver

// CardFormatContract describes the canonical card format that LLM consumers
// should follow when capturing cards.
const CardFormatContract = `# Ansuz Card Format Contract

Every card captured into Ansuz SHOULD follow this structure.

## Structure

` + "```" + `markdown
---
uuid: "generated-automatically"     # injected by Ansuz; do not invent one
source_url: "https://example.com"   # OPTIONAL – page the card was captured from
source_title: "Example Page"        # OPTIONAL – title of that page
created: "2025-01-15T10:00:00Z"     # filled at capture time
type: note                          # template kind (note, bookmark, quote, ...)
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **Leave content empty to use a template.** The chosen template renders its
   frontmatter and skeleton body once, at capture time. Uploading never
   re-renders; whatever is stored is exactly what lands in the vault.
2. **The uuid is injected by Ansuz.** When you supply your own content with a
   frontmatter block, the card id is added as a ` + "`" + `uuid` + "`" + ` field
   automatically. Content without frontmatter is stored verbatim and the id is
   tracked locally only.
3. **Filenames come from the template's filename pattern** rendered from the
   card title (illegal filename characters become ` + "`" + `-` + "`" + `, long
   titles are truncated). Pick descriptive titles.
4. **Cards start as local drafts.** Use ` + "`" + `sync_cards` + "`" + ` to
   upload drafts into the vault; a card that fails to upload stays a draft and
   is retried on the next sync.
5. **Encoding** is UTF-8 Markdown.

## Built-in templates

| id       | purpose                           |
|----------|-----------------------------------|
| quick    | minimal note with source metadata |
| bookmark | link capture with a "why saved"   |
| quote    | cited excerpt with commentary     |
| idea     | idea triggered by a page          |
| reading  | structured reading note           |

## Assets

- Clip images or PDFs via the ` + "`" + `clip_asset` + "`" + ` tool. It stores
  the file under the vault's ` + "`" + `attachments/` + "`" + ` folder and
  returns a ` + "`" + `markdownImage` + "`" + ` field ready to paste into a
  card body.
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.
`
