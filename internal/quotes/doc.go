// Package quotes implements Phase 3: verbatim quotes and quantitative data
// keyed to the facts and entities extracted in Phase 2.
package quotes
