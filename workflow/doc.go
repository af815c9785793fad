// Package workflow turns a natural-language question into SQL.
//
// Ask consults the result cache first. On a miss it lists the warehouse
// tables, calls the Generator, cleans its output and caches the SQL under
// the question. Concurrent identical questions share one generation.
// Failed generations are never cached, and a failing cache never fails a
// question.
//
// The language model itself lives outside this module: a Generator is any
// function from Request to text, and CommandGenerator runs an external
// program.
package workflow
