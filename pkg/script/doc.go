/*
Package script implements the small, sandboxed statement and expression language that
compiled templates are built from.

A Program is compiled from source text with a list of named parameters, much like a function
body, and can then be run any number of times, concurrently, with different arguments. The
language is a restricted subset of familiar C-style scripting syntax: variable declarations,
if/else, for-of, for-in, classic for and while loops, with-blocks, and expressions over
numbers, strings, booleans, arrays and objects.

Programs can only see what they are given. Free identifiers resolve against the parameters,
the variables the program declared itself, and the objects opened with a with-block; anything
else fails with ErrUndefined. Go values passed in are reached through reflection: exported
struct fields and methods, maps with string keys, slices and arrays, and functions.
*/
package script
