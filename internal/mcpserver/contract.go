package mcpserver

// FilterGrammar describes the record filter accepted by query_records.
const FilterGrammar = `# picshelf Filter Grammar

Every catalog record has four columns:

| column        | type                  | notes                             |
|---------------|-----------------------|-----------------------------------|
| file_path     | text, unique          | absolute path of the image file   |
| ai_keywords   | text or null          | comma separated keywords          |
| used_date     | text or null          | YYYY.MM.DD                        |
| used          | 0 or 1                | whether the image has been used   |

## Arguments of query_records

- ` + "`path`" + ` substring of file_path (literal, % and _ are not wildcards)
- ` + "`keywords`" + ` substring of ai_keywords
- ` + "`used`" + ` one of any, true, false (default any)
- ` + "`date_mode`" + ` one of none, before, after, between (default none)
- ` + "`from`" + `, ` + "`to`" + ` dates in YYYY.MM.DD
- ` + "`combinator`" + ` AND or OR, joins every active condition (default AND)
- ` + "`limit`" + ` maximum number of rows, at least 1
- ` + "`order_by`" + ` one of file_path, ai_keywords, used_date, used
- ` + "`direction`" + ` ASC or DESC

## Date modes

- before: used_date < from
- after: used_date > from
- between: from <= used_date <= to; with only from it is used_date >= from,
  with only to it is used_date <= to
- Records without a used_date never match a date condition.
- before and after ignore ` + "`to`" + `.

## Editing

Edits made with set_keywords and set_used are staged in memory. Nothing is
written until save_changes is called. pending_changes lists what would be
written. Marking a record used stamps today's date; clearing it removes the
date.
`
