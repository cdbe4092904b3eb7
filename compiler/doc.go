/*
Package compiler is the recompiler middle-end and backend.

Function IML ->
	opt ->
Optimized IML ->
	ra ->
IML on host registers ->
	back ->
x86-64 code

The front-end decoding guest instructions into IML lives elsewhere.
Package sample builds IML by hand and package parse reads it from text.
*/
package compiler
