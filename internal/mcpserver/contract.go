package mcpserver

// ArticleFormatContract describes the markdown article format the pipeline
// reads when drafts are staged.
const ArticleFormatContract = `# kbpipe Article Format

Drafts live in ` + "`" + `staging/<category>/<file>.md` + "`" + ` and move to the flat
` + "`" + `articles/` + "`" + ` store on sync. The filename is the article's identity.

## Front matter

` + "```" + `markdown
---
title: Human-readable title      # falls back to the filename stem
description: One-line summary    # optional
excerpt: Teaser text             # optional, derived from the first paragraph
categories:                      # optional, first entry is the primary category
  - Linux
tags:                            # optional, a single string is accepted too
  - shell
slug: custom-slug                # optional, derived from the title
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. The front matter block must be the first thing in the file.
2. The primary category decides the directory in version snapshots and deploy
   packages.
3. Filenames must be unique across categories: the store is flat.
4. A block that fails to parse is tolerated. The article is listed under its
   filename stem with no metadata.
5. Publish-list paths are staging-relative with forward slashes, e.g.
   ` + "`" + `Linux/bash-tips.md` + "`" + `.
`
