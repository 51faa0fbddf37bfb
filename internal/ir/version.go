package ir

// EngineVersion is recorded with every applied operation.
const EngineVersion = "0.1.0"
