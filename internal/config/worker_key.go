package config

type WorkerKeyStruct struct {
	PersistAnswersQueue string
	ScoreEventsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue: "persist_answers_queue",
	ScoreEventsQueue:    "score_events_queue",
}
