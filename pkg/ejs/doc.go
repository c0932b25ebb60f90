/*
Package ejs compiles embedded-script templates into reusable renderers.

A template is literal text with three kinds of tags:

	<% statement %>     runs a statement and produces no output
	<%= expression %>   appends the escaped value of expression
	<%- expression %>   appends the value of expression unescaped

Parse turns a template into the source of a small program that accumulates output into a buffer.
Compile builds that program once with package script and returns a Template, which can be
executed any number of times, concurrently, with different locals. Tag code resolves free
identifiers against the locals map and fails with script.ErrUndefined for names it cannot find.

Templates rendered with Options.Cache set are stored in a Cache under Options.Filename and reused
until the cache is cleared. The package-level Render, Compile and ClearCache functions use a
process-wide default Renderer; hosts that need isolation construct their own with NewRenderer.
*/
package ejs
