package main

import (
	jsoniter "github.com/json-iterator/go"
)

// codec serializes records kept by the redis and bolt backends and the journal.
var codec = jsoniter.ConfigCompatibleWithStandardLibrary
