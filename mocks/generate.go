package mocks

//go:generate mockgen -source=../internal/broker/client.go -destination=./mock_execution_client.go -package=mocks
